package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"stockalloc/internal/domain/notify"
	"stockalloc/internal/infrastructure/storage/postgres"
	"stockalloc/pkg/numerator"
)

var _ numerator.SequenceStore = (*SequenceRepo)(nil)

// SequenceRepo implements numerator.SequenceStore on sys_sequences.
type SequenceRepo struct {
	txm *postgres.TxManager
}

// NewSequenceRepo creates a sequence repository.
func NewSequenceRepo(txm *postgres.TxManager) *SequenceRepo {
	return &SequenceRepo{txm: txm}
}

// Increment adds by to the counter, creating it on first use, and returns
// the new value. The upsert holds the row lock until the transaction ends.
func (r *SequenceRepo) Increment(ctx context.Context, key string, by int64) (int64, error) {
	var v int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_value = sys_sequences.current_value + EXCLUDED.current_value
		RETURNING current_value
	`, key, by).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, err)
	}
	return v, nil
}

const notificationsTable = "notifications"

var notificationColumns = postgres.ExtractDBColumns[notify.Notification]()

var _ notify.Repository = (*NotificationRepo)(nil)

// NotificationRepo implements notify.Repository.
type NotificationRepo struct {
	txm *postgres.TxManager
}

// NewNotificationRepo creates a notification repository.
func NewNotificationRepo(txm *postgres.TxManager) *NotificationRepo {
	return &NotificationRepo{txm: txm}
}

func (r *NotificationRepo) Create(ctx context.Context, n *notify.Notification) error {
	q := postgres.Insert(notificationsTable, notificationColumns, n)
	if _, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByActor returns the newest notifications first. An empty actor lists
// everyone's.
func (r *NotificationRepo) ListByActor(ctx context.Context, actor string, limit int) ([]*notify.Notification, error) {
	var out []*notify.Notification
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &out, notificationsQuery(actor, limit)); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func notificationsQuery(actor string, limit int) squirrel.SelectBuilder {
	q := postgres.Builder().Select(notificationColumns...).From(notificationsTable).OrderBy("created_at DESC", "id DESC")
	if actor != "" {
		q = q.Where(squirrel.Eq{"actor": actor})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}
