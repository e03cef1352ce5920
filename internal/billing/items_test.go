package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/catalog"
)

func f64(v float64) *float64 { return &v }

func testProducts() []catalog.Product {
	return []catalog.Product{
		{Name: "Vanilla Tub", Unit: "litre", SellingPrice: f64(250), Price: f64(180)},
		{Name: "Choco Bar", Unit: "piece", Price: f64(15)},
		{Name: "Kulfi Stick", Unit: "piece"},
	}
}

func TestNewLinesStartBlankWithUnitQuantity(t *testing.T) {
	lines := NewLines(15)
	require.Len(t, lines, 15)
	for _, l := range lines {
		assert.Equal(t, 1.0, l.Quantity)
		assert.Empty(t, l.ProductName)
		assert.Zero(t, l.Price)
		assert.Zero(t, l.Total)
		assert.False(t, l.Free)
	}
}

func TestUpdateLineOutOfRangeIsNoOp(t *testing.T) {
	lines := NewLines(3)
	before := make([]LineItem, len(lines))
	copy(before, lines)

	lines = UpdateLine(lines, -1, FieldPrice, "100", nil)
	lines = UpdateLine(lines, 3, FieldPrice, "100", nil)
	assert.Equal(t, before, lines)
}

func TestUpdateLineCoercesBadNumbersToZero(t *testing.T) {
	lines := NewLines(1)

	lines = UpdateLine(lines, 0, FieldQuantity, "abc", nil)
	assert.Zero(t, lines[0].Quantity)

	lines = UpdateLine(lines, 0, FieldPrice, "", nil)
	assert.Zero(t, lines[0].Price)
	assert.Zero(t, lines[0].Total)
}

func TestUpdateLineAutoFillsFromCatalog(t *testing.T) {
	lines := NewLines(1)

	lines = UpdateLine(lines, 0, FieldProductName, "vanilla tub", testProducts())
	assert.Equal(t, 250.0, lines[0].Price)
	assert.Equal(t, "litre", lines[0].Unit)
	assert.Equal(t, 250.0, lines[0].Total)
}

func TestUpdateLineAutoFillFallsBackToCostPrice(t *testing.T) {
	lines := NewLines(1)

	lines = UpdateLine(lines, 0, FieldProductName, "Choco Bar", testProducts())
	assert.Equal(t, 15.0, lines[0].Price)
}

func TestUpdateLineAutoFillZeroWhenUnpriced(t *testing.T) {
	lines := NewLines(1)
	lines = UpdateLine(lines, 0, FieldPrice, "99", nil)

	lines = UpdateLine(lines, 0, FieldProductName, "Kulfi Stick", testProducts())
	assert.Zero(t, lines[0].Price)
	assert.Zero(t, lines[0].Total)
}

func TestUpdateLineAutoFillOverwritesManualUnit(t *testing.T) {
	lines := NewLines(1)
	lines = UpdateLine(lines, 0, FieldUnit, "box", nil)

	lines = UpdateLine(lines, 0, FieldProductName, "Vanilla Tub", testProducts())
	assert.Equal(t, "litre", lines[0].Unit)
}

func TestUpdateLineNoMatchKeepsManualValues(t *testing.T) {
	lines := NewLines(1)
	lines = UpdateLine(lines, 0, FieldUnit, "box", nil)
	lines = UpdateLine(lines, 0, FieldPrice, "42", nil)

	lines = UpdateLine(lines, 0, FieldProductName, "Vanil", testProducts())
	assert.Equal(t, "box", lines[0].Unit)
	assert.Equal(t, 42.0, lines[0].Price)
}

func TestToggleFreeZeroesTotalAndBack(t *testing.T) {
	lines := NewLines(1)
	lines = UpdateLine(lines, 0, FieldProductName, "Vanilla Tub", testProducts())
	lines = UpdateLine(lines, 0, FieldQuantity, "4", nil)
	require.Equal(t, 1000.0, lines[0].Total)

	lines = ToggleFree(lines, 0)
	assert.True(t, lines[0].Free)
	assert.Zero(t, lines[0].Total)

	lines = ToggleFree(lines, 0)
	assert.False(t, lines[0].Free)
	assert.Equal(t, 1000.0, lines[0].Total)

	// Out-of-range toggles change nothing.
	before := make([]LineItem, len(lines))
	copy(before, lines)
	lines = ToggleFree(lines, 9)
	assert.Equal(t, before, lines)
}

func TestAddLineAppendsBlankRow(t *testing.T) {
	lines := NewLines(15)
	lines = AddLine(lines)
	require.Len(t, lines, 16)
	assert.Equal(t, 1.0, lines[15].Quantity)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	lines := NewLines(2)
	lines = UpdateLine(lines, 0, FieldProductName, "Vanilla Tub", testProducts())
	lines = UpdateLine(lines, 1, FieldPrice, "12.5", nil)

	once := Recompute(append([]LineItem(nil), lines...))
	twice := Recompute(append([]LineItem(nil), once...))
	assert.Equal(t, once, twice)
}
