package models

import (
	"github.com/shopspring/decimal"
)

// OrderPatch is a partial update. Nil fields are left alone; stages,
// touchpoints and the custom reminder are merged key by key.
type OrderPatch struct {
	CustomerName   *string           `json:"customer_name,omitempty"`
	CustomerEmail  *string           `json:"customer_email,omitempty"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	ProductItems   ProductItems      `json:"product_items,omitempty"`
	Stages         *StagesPatch      `json:"stages,omitempty"`
	Touchpoints    *TouchpointsPatch `json:"touchpoints,omitempty"`
	CustomReminder *ReminderPatch    `json:"custom_reminder,omitempty"`
	Notes          *string           `json:"notes,omitempty"`
	IsHighPriority *bool             `json:"is_high_priority,omitempty"`
	Archived       *bool             `json:"-"`
}

// StagesPatch carries the stage flags supplied by the caller
type StagesPatch struct {
	InEmbroidery    *bool `json:"in_embroidery,omitempty"`
	Customizing     *bool `json:"customizing,omitempty"`
	Washing         *bool `json:"washing,omitempty"`
	ReadyToDispatch *bool `json:"ready_to_dispatch,omitempty"`
	SentToDelhi     *bool `json:"sent_to_delhi,omitempty"`
	LeftXportel     *bool `json:"left_xportel,omitempty"`
	ReachedCountry  *bool `json:"reached_country,omitempty"`
	Delivered       *bool `json:"delivered,omitempty"`
}

// TouchpointsPatch carries the touchpoint keys supplied by the caller
type TouchpointsPatch struct {
	WhatsApp *bool   `json:"whatsapp,omitempty"`
	Email    *bool   `json:"email,omitempty"`
	Crisp    *bool   `json:"crisp,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// ReminderPatch carries the custom reminder keys supplied by the caller
type ReminderPatch struct {
	Days     *ReminderDays `json:"days,omitempty"`
	Time     *string       `json:"time,omitempty"`
	Note     *string       `json:"note,omitempty"`
	IsActive *bool         `json:"is_active,omitempty"`
}

// SetStage returns a patch that changes a single stage flag
func SetStage(stage Stage, value bool) OrderPatch {
	sp := &StagesPatch{}

	if f, ok := sp.fields()[stage]; ok {
		*f = &value
	}

	return OrderPatch{Stages: sp}
}

func (p *StagesPatch) fields() map[Stage]**bool {
	return map[Stage]**bool{
		StageInEmbroidery:    &p.InEmbroidery,
		StageCustomizing:     &p.Customizing,
		StageWashing:         &p.Washing,
		StageReadyToDispatch: &p.ReadyToDispatch,
		StageSentToDelhi:     &p.SentToDelhi,
		StageLeftXportel:     &p.LeftXportel,
		StageReachedCountry:  &p.ReachedCountry,
		StageDelivered:       &p.Delivered,
	}
}

// Apply merges the supplied stage flags into s
func (p *StagesPatch) Apply(s *Stages) {
	if p == nil {
		return
	}

	for stage, f := range p.fields() {
		if *f != nil {
			s.Set(stage, **f)
		}
	}
}

// Apply merges the supplied touchpoint keys into t
func (p *TouchpointsPatch) Apply(t *Touchpoints) {
	if p == nil {
		return
	}
	if p.WhatsApp != nil {
		t.WhatsApp = *p.WhatsApp
	}
	if p.Email != nil {
		t.Email = *p.Email
	}
	if p.Crisp != nil {
		t.Crisp = *p.Crisp
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
}

// Apply merges the supplied keys into r, creating it when absent
func (p *ReminderPatch) Apply(r *CustomReminder) *CustomReminder {
	if p == nil {
		return r
	}

	var merged CustomReminder

	if r != nil {
		merged = *r
	}

	if p.Days != nil {
		merged.Days = *p.Days
	}
	if p.Time != nil {
		merged.Time = *p.Time
	}
	if p.Note != nil {
		merged.Note = *p.Note
	}
	if p.IsActive != nil {
		merged.IsActive = *p.IsActive
	}

	return &merged
}

// Apply merges the patch into the order. UpdatedAt is left to the store.
func (p OrderPatch) Apply(o *Order) {
	if p.CustomerName != nil {
		o.CustomerName = *p.CustomerName
	}
	if p.CustomerEmail != nil {
		o.CustomerEmail = *p.CustomerEmail
	}
	if p.Amount != nil {
		o.Amount = *p.Amount
	}
	if p.ProductItems != nil {
		o.ProductItems = append(ProductItems(nil), p.ProductItems...)
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.IsHighPriority != nil {
		o.IsHighPriority = *p.IsHighPriority
	}
	if p.Archived != nil {
		o.Archived = *p.Archived
	}

	p.Stages.Apply(&o.Stages)
	p.Touchpoints.Apply(&o.Touchpoints)
	o.CustomReminder = p.CustomReminder.Apply(o.CustomReminder)
}
