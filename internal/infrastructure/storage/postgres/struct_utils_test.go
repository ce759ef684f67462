package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockalloc/internal/core/entity"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
)

type mockBatch struct {
	entity.BaseEntity
	LotNo  string         `db:"lot_no"`
	Qty    types.Quantity `db:"received_qty"`
	Expiry *time.Time     `db:"expiry_date"`
	Notes  string         `db:"-"`
	Hidden string
}

func TestExtractDBColumns_EmbeddedFields(t *testing.T) {
	cols := ExtractDBColumns[mockBatch]()
	assert.Equal(t, []string{"id", "created_at", "updated_at", "lot_no", "received_qty", "expiry_date"}, cols)
}

func TestStructToMap(t *testing.T) {
	exp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	b := &mockBatch{
		BaseEntity: entity.BaseEntity{ID: id.New()},
		LotNo:      "LOT-1",
		Qty:        types.NewQuantity(5),
		Expiry:     &exp,
		Notes:      "ignored",
	}

	m := StructToMap(b)

	assert.Len(t, m, 6)
	assert.Equal(t, b.ID, m["id"])
	assert.Equal(t, "LOT-1", m["lot_no"])
	assert.Equal(t, types.NewQuantity(5), m["received_qty"])
	assert.Equal(t, &exp, m["expiry_date"])
	assert.NotContains(t, m, "Notes")
	assert.Nil(t, StructToMap(42))
}
