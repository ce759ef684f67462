package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    Quantity
		wantErr bool
	}{
		{"50", NewQuantity(50), false},
		{"0.5", Quantity(5_000), false},
		{"12.3456", Quantity(123_456), false},
		{"-3", NewQuantity(-3), false},
		{"1.23456", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "70.0000", NewQuantity(70).String())
	assert.Equal(t, "-0.2500", Quantity(-2_500).String())
	assert.True(t, NewQuantity(1).Decimal().Equal(decimal.NewFromInt(1)))
}

func TestQuantity_JSON(t *testing.T) {
	var payload struct {
		A Quantity `json:"a"`
		B Quantity `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12.5, "b": "7"}`), &payload))
	assert.Equal(t, MustQuantity("12.5"), payload.A)
	assert.Equal(t, NewQuantity(7), payload.B)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 12.5, "b": 7}`, string(out))
}

func TestMinQuantity(t *testing.T) {
	assert.Equal(t, NewQuantity(50), MinQuantity(NewQuantity(50), NewQuantity(120)))
	assert.Equal(t, NewQuantity(70), MinQuantity(NewQuantity(100), NewQuantity(70)))
}
