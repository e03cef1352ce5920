package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestLowStockStrictlyBelowThreshold(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    bool
	}{
		{"no threshold set", Product{Quantity: 0}, false},
		{"below threshold", Product{Quantity: 4, MinStock: floatPtr(5)}, true},
		{"exactly at threshold", Product{Quantity: 5, MinStock: floatPtr(5)}, false},
		{"above threshold", Product{Quantity: 6, MinStock: floatPtr(5)}, false},
		{"zero stock zero threshold", Product{Quantity: 0, MinStock: floatPtr(0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lowStock(tt.product))
		})
	}
}

func TestListQuerySearchesNameAndCategory(t *testing.T) {
	query, args := listQuery("user-1", ListParams{Query: "Kulfi"})

	assert.Contains(t, query, "lower(name) LIKE $2")
	assert.Contains(t, query, "lower(category) LIKE $2")
	assert.Equal(t, []any{"user-1", "%kulfi%"}, args)
}

func TestListQueryUnfiltered(t *testing.T) {
	query, args := listQuery("user-1", ListParams{})

	assert.NotContains(t, query, "LIKE")
	assert.Equal(t, []any{"user-1"}, args)
}
