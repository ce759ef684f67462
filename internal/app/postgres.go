package app

import (
	"stockalloc/internal/infrastructure/storage/postgres"
	"stockalloc/internal/infrastructure/storage/postgres/inventory_repo"
	"stockalloc/internal/infrastructure/storage/postgres/ledger_repo"
	"stockalloc/internal/infrastructure/storage/postgres/order_repo"
)

// PostgresRepositories builds Repositories over PostgreSQL.
func PostgresRepositories(txm *postgres.TxManager, codec *postgres.MetaCodec) Repositories {
	allocations := order_repo.NewAllocationRepo(txm)
	return Repositories{
		Items:         inventory_repo.NewItemRepo(txm),
		Batches:       inventory_repo.NewBatchRepo(txm),
		Orders:        order_repo.NewOrderRepo(txm),
		Allocations:   allocations,
		Shipments:     order_repo.NewShipmentRepo(txm),
		Returns:       order_repo.NewReturnRepo(txm),
		Entries:       ledger_repo.NewEntryRepo(txm, codec),
		UndoStack:     ledger_repo.NewStackRepo(txm, ledger_repo.UndoTable),
		RedoStack:     ledger_repo.NewStackRepo(txm, ledger_repo.RedoTable),
		Sequences:     ledger_repo.NewSequenceRepo(txm),
		Notifications: ledger_repo.NewNotificationRepo(txm),
	}
}
