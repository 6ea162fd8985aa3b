package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

func dated(id, number string, d models.Date, amount string, qty int) *models.Order {
	return &models.Order{
		ID:           id,
		OrderNumber:  number,
		OrderDate:    d,
		Amount:       decimal.RequireFromString(amount),
		ProductItems: models.ProductItems{{Name: "Shawl", SKU: "S", Quantity: qty}},
	}
}

func TestGrowth(t *testing.T) {
	assert.Equal(t, 0.0, Growth(5, 0))
	assert.Equal(t, 0.0, Growth(0, 0))
	assert.Equal(t, 50.0, Growth(150, 100))
	assert.Equal(t, -100.0, Growth(0, 40))
	assert.Equal(t, 33.3, Growth(4, 3))
	assert.Equal(t, -66.7, Growth(1, 3))
}

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(nil, Period{Month: time.March, Year: 2024})

	assert.Zero(t, stats.OrderCount)
	assert.Zero(t, stats.ItemCount)
	assert.Zero(t, stats.CompletedCount)
	assert.Zero(t, stats.PendingCount)
	assert.Zero(t, stats.HighPriorityCount)
	assert.True(t, stats.Revenue.IsZero())
	assert.True(t, stats.AvgOrderValue.IsZero())
}

func TestAggregate(t *testing.T) {
	p := Period{Month: time.May, Year: 2024}

	a := dated("a", "KM-1", models.NewDate(2024, time.May, 1), "120.50", 2)
	b := dated("b", "KM-2", models.NewDate(2024, time.May, 31), "100", 1)
	b.Stages.Delivered = true
	b.IsHighPriority = true
	c := dated("c", "KM-3", models.NewDate(2024, time.May, 20), "79.50", 3)
	c.Stages.SentToDelhi = true
	c.Archived = true
	outside := dated("d", "KM-4", models.NewDate(2023, time.May, 5), "999", 9)
	nextMonth := dated("e", "KM-5", models.NewDate(2024, time.June, 1), "999", 9)

	stats := Aggregate([]*models.Order{a, b, c, outside, nextMonth}, p)

	assert.Equal(t, 3, stats.OrderCount)
	assert.Equal(t, "300", stats.Revenue.String())
	assert.Equal(t, 6, stats.ItemCount)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, 1, stats.HighPriorityCount)
	assert.Equal(t, "100", stats.AvgOrderValue.String())
}

func TestAggregate_RoundTripItemCount(t *testing.T) {
	o := models.NewOrder("", models.NewDate(2024, time.January, 15), "Asha", "asha@example.com",
		decimal.RequireFromString("120.50"),
		[]models.ProductItem{{Name: "Hand Embroidered Shawl", SKU: "SHWL-001", Quantity: 2}}, "")

	stats := Aggregate([]*models.Order{o}, Period{Month: time.January, Year: 2024})

	assert.Equal(t, 2, stats.ItemCount)
	assert.Equal(t, "120.5", stats.AvgOrderValue.String())
	assert.Equal(t, "Unfulfilled", ResolveStatus(o.Stages))
}

func TestAggregate_AvgOrderValueRounded(t *testing.T) {
	p := Period{Month: time.May, Year: 2024}
	d := models.NewDate(2024, time.May, 2)

	stats := Aggregate([]*models.Order{dated("a", "1", d, "10", 1), dated("b", "2", d, "10", 1), dated("c", "3", d, "0.01", 1)}, p)
	assert.Equal(t, "6.67", stats.AvgOrderValue.String())
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, Period{Month: time.December, Year: 2023}, Period{Month: time.January, Year: 2024}.Previous())
	assert.Equal(t, Period{Month: time.February, Year: 2024}, PreviousPeriod(Period{Month: time.March, Year: 2024}))
	assert.Equal(t, "March 2024", Period{Month: time.March, Year: 2024}.String())

	p, err := NewPeriod(12, 2024)
	require.NoError(t, err)
	assert.Equal(t, time.December, p.Month)

	for _, m := range []int{0, 13, -1} {
		_, err := NewPeriod(m, 2024)
		assert.True(t, errors.Is(err, apperrors.ErrValidation), m)
	}

	assert.False(t, p.Contains(models.Date{}))
}

func TestSortForDisplay(t *testing.T) {
	orders := []*models.Order{
		dated("a", "KM-2", models.NewDate(2024, time.May, 1), "1", 1),
		dated("b", "KM-9", models.NewDate(2024, time.May, 3), "1", 1),
		dated("c", "KM-1", models.NewDate(2024, time.May, 1), "1", 1),
	}

	got := SortForDisplay(orders)

	var order []string
	for _, o := range got {
		order = append(order, o.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, order)
	assert.Equal(t, "a", orders[0].ID, "input is not reordered")
}

func TestBuildReport(t *testing.T) {
	orders := []*models.Order{
		dated("a", "KM-1", models.NewDate(2024, time.January, 3), "150", 1),
		dated("b", "KM-2", models.NewDate(2024, time.January, 9), "150", 1),
		dated("c", "KM-3", models.NewDate(2023, time.December, 30), "200", 1),
	}

	r := BuildReport(orders, Period{Month: time.January, Year: 2024})

	assert.Equal(t, Period{Month: time.December, Year: 2023}, r.PreviousPeriod)
	assert.Equal(t, 2, r.Stats.OrderCount)
	assert.Equal(t, 1, r.PreviousStats.OrderCount)
	assert.Equal(t, 100.0, r.OrderGrowth)
	assert.Equal(t, 50.0, r.RevenueGrowth)
	require.Len(t, r.Orders, 2)
	assert.Equal(t, "b", r.Orders[0].ID)
}
