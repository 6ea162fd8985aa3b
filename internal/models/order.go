package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order represents a customer order tracked by the support portal
type Order struct {
	ID             string          `db:"id" json:"id"`
	OrderNumber    string          `db:"order_number" json:"order_number"`
	OrderDate      Date            `db:"order_date" json:"order_date"`
	CustomerName   string          `db:"customer_name" json:"customer_name"`
	CustomerEmail  string          `db:"customer_email" json:"customer_email"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	ProductItems   ProductItems    `db:"product_items" json:"product_items"`
	Stages         Stages          `db:"stages" json:"stages"`
	Touchpoints    Touchpoints     `db:"touchpoints" json:"touchpoints"`
	IsHighPriority bool            `db:"is_high_priority" json:"is_high_priority"`
	CustomReminder *CustomReminder `db:"custom_reminder" json:"custom_reminder,omitempty"`
	Notes          string          `db:"notes" json:"notes"`
	Archived       bool            `db:"archived" json:"archived"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// NewOrder creates a new order with a fresh id and empty pipeline.
// An empty order number is replaced with one derived from the id.
func NewOrder(orderNumber string, orderDate Date, customerName, customerEmail string, amount decimal.Decimal, items []ProductItem, notes string) *Order {
	now := GetCurrentTime()
	id := uuid.New().String()

	if orderNumber == "" {
		orderNumber = DefaultOrderNumber(id)
	}

	return &Order{
		ID:            id,
		OrderNumber:   orderNumber,
		OrderDate:     orderDate,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Amount:        amount,
		ProductItems:  append(ProductItems(nil), items...),
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// DefaultOrderNumber derives a display number from an order id
func DefaultOrderNumber(id string) string {
	short := strings.ReplaceAll(id, "-", "")

	if len(short) > 8 {
		short = short[:8]
	}

	return "ORD-" + strings.ToUpper(short)
}

// ItemCount returns the total quantity across all product items
func (o *Order) ItemCount() int {
	total := 0

	for _, item := range o.ProductItems {
		total += item.Quantity
	}

	return total
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	cp := *o
	cp.ProductItems = append(ProductItems(nil), o.ProductItems...)

	if o.CustomReminder != nil {
		r := *o.CustomReminder
		cp.CustomReminder = &r
	}

	return &cp
}

// ProductItem is one line of an order
type ProductItem struct {
	Name     string `json:"name" validate:"required"`
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// ProductItems is stored as a JSONB array
type ProductItems []ProductItem

// Value implements driver.Valuer
func (p ProductItems) Value() (driver.Value, error) {
	if p == nil {
		return jsonValue([]ProductItem{})
	}
	return jsonValue([]ProductItem(p))
}

// Scan implements sql.Scanner
func (p *ProductItems) Scan(src interface{}) error {
	return jsonScan(src, (*[]ProductItem)(p))
}

// Stage identifies one step of the fulfillment pipeline
type Stage int

const (
	StageInEmbroidery Stage = iota
	StageCustomizing
	StageWashing
	StageReadyToDispatch
	StageSentToDelhi
	StageLeftXportel
	StageReachedCountry
	StageDelivered
)

// StageCount is the number of pipeline stages
const StageCount = 8

var stageKeys = [StageCount]string{
	"in_embroidery",
	"customizing",
	"washing",
	"ready_to_dispatch",
	"sent_to_delhi",
	"left_xportel",
	"reached_country",
	"delivered",
}

// Key returns the wire name of the stage
func (s Stage) Key() string {
	if s < 0 || int(s) >= StageCount {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageKeys[s]
}

func (s Stage) String() string {
	return s.Key()
}

// ParseStage looks a stage up by its wire name
func ParseStage(key string) (Stage, bool) {
	for i, k := range stageKeys {
		if k == key {
			return Stage(i), true
		}
	}
	return 0, false
}

// Stages holds the eight independently settable pipeline flags
type Stages struct {
	InEmbroidery    bool `json:"in_embroidery"`
	Customizing     bool `json:"customizing"`
	Washing         bool `json:"washing"`
	ReadyToDispatch bool `json:"ready_to_dispatch"`
	SentToDelhi     bool `json:"sent_to_delhi"`
	LeftXportel     bool `json:"left_xportel"`
	ReachedCountry  bool `json:"reached_country"`
	Delivered       bool `json:"delivered"`
}

func (s *Stages) flag(stage Stage) *bool {
	switch stage {
	case StageInEmbroidery:
		return &s.InEmbroidery
	case StageCustomizing:
		return &s.Customizing
	case StageWashing:
		return &s.Washing
	case StageReadyToDispatch:
		return &s.ReadyToDispatch
	case StageSentToDelhi:
		return &s.SentToDelhi
	case StageLeftXportel:
		return &s.LeftXportel
	case StageReachedCountry:
		return &s.ReachedCountry
	case StageDelivered:
		return &s.Delivered
	default:
		return nil
	}
}

// Get reports whether the given stage flag is set
func (s Stages) Get(stage Stage) bool {
	if f := s.flag(stage); f != nil {
		return *f
	}
	return false
}

// Set changes a single stage flag; other flags are untouched
func (s *Stages) Set(stage Stage, value bool) {
	if f := s.flag(stage); f != nil {
		*f = value
	}
}

// Value implements driver.Valuer
func (s Stages) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements sql.Scanner
func (s *Stages) Scan(src interface{}) error {
	type plain Stages
	return jsonScan(src, (*plain)(s))
}

// Touchpoints records which contact channels were used
type Touchpoints struct {
	WhatsApp bool   `json:"whatsapp"`
	Email    bool   `json:"email"`
	Crisp    bool   `json:"crisp"`
	Notes    string `json:"notes"`
}

// Value implements driver.Valuer
func (t Touchpoints) Value() (driver.Value, error) {
	return jsonValue(t)
}

// Scan implements sql.Scanner
func (t *Touchpoints) Scan(src interface{}) error {
	type plain Touchpoints
	return jsonScan(src, (*plain)(t))
}

// CustomReminder is a staff-authored follow-up schedule for one order.
// Delivery is handled outside the portal.
type CustomReminder struct {
	Days     ReminderDays `json:"days"`
	Time     string       `json:"time"`
	Note     string       `json:"note"`
	IsActive bool         `json:"is_active"`
}

// Value implements driver.Valuer
func (r CustomReminder) Value() (driver.Value, error) {
	return jsonValue(r)
}

// Scan implements sql.Scanner
func (r *CustomReminder) Scan(src interface{}) error {
	type plain CustomReminder
	return jsonScan(src, (*plain)(r))
}

// ReminderDays is a day count that decodes leniently: numbers, numeric
// strings and null are accepted, anything unusable or negative becomes 0.
type ReminderDays int

// UnmarshalJSON implements json.Unmarshaler
func (d *ReminderDays) UnmarshalJSON(data []byte) error {
	var raw interface{}

	if err := json.Unmarshal(data, &raw); err != nil {
		*d = 0
		return nil
	}

	*d = ReminderDaysFrom(raw)
	return nil
}

// ReminderDaysFrom coerces an arbitrary decoded value into a day count
func ReminderDaysFrom(raw interface{}) ReminderDays {
	var n float64

	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}

	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}

	if n > math.MaxInt32 {
		return math.MaxInt32
	}

	return ReminderDays(int(n))
}
