package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

// StaleReminder is a system alert for an order nobody has touched recently
type StaleReminder struct {
	OrderID         string          `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CustomerName    string          `json:"customer_name"`
	Amount          decimal.Decimal `json:"amount"`
	DaysSinceUpdate int             `json:"days_since_update"`
}

// DaysSince returns the whole days elapsed between from and now
func DaysSince(from, now time.Time) int {
	if !now.After(from) {
		return 0
	}
	return int(now.Sub(from) / (24 * time.Hour))
}

// FindStale returns undelivered, unarchived orders whose last update is at
// least thresholdDays old, most stale first.
func FindStale(orders []*models.Order, thresholdDays int, now time.Time) []StaleReminder {
	if thresholdDays < 0 {
		thresholdDays = 0
	}

	out := make([]StaleReminder, 0)

	for _, o := range orders {
		if o == nil || o.Archived || o.Stages.Delivered {
			continue
		}

		days := DaysSince(o.UpdatedAt, now)

		if days < thresholdDays {
			continue
		}

		out = append(out, StaleReminder{
			OrderID:         o.ID,
			OrderNumber:     o.OrderNumber,
			CustomerName:    o.CustomerName,
			Amount:          o.Amount,
			DaysSinceUpdate: days,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysSinceUpdate > out[j].DaysSinceUpdate
	})

	return out
}

// ValidateReminderTime accepts an empty string or a 24-hour HH:MM time
func ValidateReminderTime(s string) error {
	if s == "" {
		return nil
	}

	if len(s) != 5 || s[2] != ':' {
		return apperrors.NewValidationError("custom_reminder.time", fmt.Sprintf("%q is not in HH:MM format", s))
	}

	if _, err := time.Parse("15:04", s); err != nil {
		return apperrors.NewValidationError("custom_reminder.time", fmt.Sprintf("%q is not a valid time of day", s))
	}

	return nil
}

// NormalizeReminder coerces the day count to be non-negative and checks the
// time of day. The reminder is returned unchanged otherwise.
func NormalizeReminder(r models.CustomReminder) (models.CustomReminder, error) {
	if r.Days < 0 {
		r.Days = 0
	}

	if err := ValidateReminderTime(r.Time); err != nil {
		return r, err
	}

	return r, nil
}
