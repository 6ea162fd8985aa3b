package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

// Period is a calendar month
type Period struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

// NewPeriod validates a month/year pair
func NewPeriod(month int, year int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, apperrors.NewValidationError("month", fmt.Sprintf("month must be between 1 and 12, got %d", month))
	}

	if year < 1 || year > 9999 {
		return Period{}, apperrors.NewValidationError("year", fmt.Sprintf("invalid year %d", year))
	}

	return Period{Month: time.Month(month), Year: year}, nil
}

// PeriodOf returns the period containing t in t's location
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// Contains reports whether the date falls in the period's calendar month
func (p Period) Contains(d models.Date) bool {
	return !d.IsZero() && d.Month() == p.Month && d.Year() == p.Year
}

// Previous returns the month before p, rolling January back to December
func (p Period) Previous() Period {
	if p.Month == time.January {
		return Period{Month: time.December, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

// PreviousPeriod is the function form of Period.Previous
func PreviousPeriod(p Period) Period {
	return p.Previous()
}

// Stats is the rollup of one period
type Stats struct {
	OrderCount        int             `json:"order_count"`
	Revenue           decimal.Decimal `json:"revenue"`
	ItemCount         int             `json:"item_count"`
	CompletedCount    int             `json:"completed_count"`
	PendingCount      int             `json:"pending_count"`
	HighPriorityCount int             `json:"high_priority_count"`
	AvgOrderValue     decimal.Decimal `json:"avg_order_value"`
}

// InPeriod returns the orders dated within p, keeping their order
func InPeriod(orders []*models.Order, p Period) []*models.Order {
	out := make([]*models.Order, 0)

	for _, o := range orders {
		if o != nil && p.Contains(o.OrderDate) {
			out = append(out, o)
		}
	}

	return out
}

// Aggregate computes the statistics of the orders dated within p
func Aggregate(orders []*models.Order, p Period) Stats {
	return summarize(InPeriod(orders, p))
}

func summarize(members []*models.Order) Stats {
	stats := Stats{
		Revenue:       decimal.Zero,
		AvgOrderValue: decimal.Zero,
	}

	for _, o := range members {
		stats.OrderCount++
		stats.Revenue = stats.Revenue.Add(o.Amount)
		stats.ItemCount += o.ItemCount()

		if o.Stages.Delivered {
			stats.CompletedCount++
		}
		if !IsFulfilled(o.Stages) {
			stats.PendingCount++
		}
		if o.IsHighPriority {
			stats.HighPriorityCount++
		}
	}

	if stats.OrderCount > 0 {
		stats.AvgOrderValue = stats.Revenue.Div(decimal.NewFromInt(int64(stats.OrderCount))).Round(2)
	}

	return stats
}

// Growth returns the percentage change from previous to current rounded to
// one decimal. A previous value of zero always yields 0.
func Growth(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}

	g := (current - previous) / previous * 100
	return math.Round(g*10) / 10
}

// SortForDisplay returns a copy sorted by order date, newest first, with
// ties broken by order number ascending.
func SortForDisplay(orders []*models.Order) []*models.Order {
	out := append([]*models.Order(nil), orders...)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		if !a.OrderDate.Equal(b.OrderDate) {
			return b.OrderDate.Before(a.OrderDate)
		}

		return a.OrderNumber < b.OrderNumber
	})

	return out
}

// Report is the month-over-month analytics view
type Report struct {
	Period         Period          `json:"period"`
	PreviousPeriod Period          `json:"previous_period"`
	Stats          Stats           `json:"stats"`
	PreviousStats  Stats           `json:"previous_stats"`
	OrderGrowth    float64         `json:"order_growth"`
	RevenueGrowth  float64         `json:"revenue_growth"`
	Orders         []*models.Order `json:"orders"`
}

// BuildReport aggregates p and the month before it
func BuildReport(orders []*models.Order, p Period) Report {
	prev := p.Previous()
	members := InPeriod(orders, p)

	current := summarize(members)
	previous := Aggregate(orders, prev)

	return Report{
		Period:         p,
		PreviousPeriod: prev,
		Stats:          current,
		PreviousStats:  previous,
		OrderGrowth:    Growth(float64(current.OrderCount), float64(previous.OrderCount)),
		RevenueGrowth:  Growth(current.Revenue.InexactFloat64(), previous.Revenue.InexactFloat64()),
		Orders:         SortForDisplay(members),
	}
}
