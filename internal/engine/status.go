package engine

import (
	"github.com/vaidashi/support-portal/internal/models"
)

// Status and fulfillment labels shown by the portal
const (
	StatusUnfulfilled    = "Unfulfilled"
	FulfillmentFulfilled = "Fulfilled"
	FulfillmentPending   = "Unfulfilled"
)

// DispatchBoundary is the first stage at which an order counts as fulfilled
const DispatchBoundary = models.StageSentToDelhi

// StageInfo describes one step of the fulfillment pipeline
type StageInfo struct {
	Stage       models.Stage `json:"-"`
	Key         string       `json:"key"`
	Title       string       `json:"title"`
	StatusLabel string       `json:"status_label"`
	Fulfilled   bool         `json:"fulfilled"`
}

// pipeline is in forward order
var pipeline = [models.StageCount]StageInfo{
	{Stage: models.StageInEmbroidery, Title: "In Embroidery", StatusLabel: "In Progress"},
	{Stage: models.StageCustomizing, Title: "Customizing", StatusLabel: "Customizing"},
	{Stage: models.StageWashing, Title: "Washing", StatusLabel: "Washing"},
	{Stage: models.StageReadyToDispatch, Title: "Ready to Dispatch", StatusLabel: "Ready"},
	{Stage: models.StageSentToDelhi, Title: "Sent to Delhi (Xportel)", StatusLabel: "Dispatched"},
	{Stage: models.StageLeftXportel, Title: "Left Xportel Facility", StatusLabel: "Left Xportel"},
	{Stage: models.StageReachedCountry, Title: "Reached to the Country", StatusLabel: "In Transit"},
	{Stage: models.StageDelivered, Title: "Delivered", StatusLabel: "Delivered"},
}

func init() {
	for i := range pipeline {
		pipeline[i].Key = pipeline[i].Stage.Key()
		pipeline[i].Fulfilled = pipeline[i].Stage >= DispatchBoundary
	}
}

// Pipeline returns the stages in forward order
func Pipeline() []StageInfo {
	out := make([]StageInfo, len(pipeline))
	copy(out, pipeline[:])
	return out
}

// StageLabel returns the status label used when stage is the latest set flag
func StageLabel(stage models.Stage) string {
	if stage < 0 || int(stage) >= len(pipeline) {
		return StatusUnfulfilled
	}
	return pipeline[stage].StatusLabel
}

// CurrentStage returns the furthest stage whose flag is set. Earlier flags
// are not consulted, so gaps and reverted stages are tolerated as-is.
func CurrentStage(stages models.Stages) (models.Stage, bool) {
	for i := len(pipeline) - 1; i >= 0; i-- {
		if stages.Get(pipeline[i].Stage) {
			return pipeline[i].Stage, true
		}
	}
	return 0, false
}

// ResolveStatus maps the stage flags to the single status label shown to staff
func ResolveStatus(stages models.Stages) string {
	stage, ok := CurrentStage(stages)

	if !ok {
		return StatusUnfulfilled
	}

	return StageLabel(stage)
}

// IsFulfilled reports whether any stage at or past the dispatch boundary is set
func IsFulfilled(stages models.Stages) bool {
	for _, info := range pipeline[DispatchBoundary:] {
		if stages.Get(info.Stage) {
			return true
		}
	}
	return false
}

// FulfillmentLabel is the text of the fulfillment badge
func FulfillmentLabel(stages models.Stages) string {
	if IsFulfilled(stages) {
		return FulfillmentFulfilled
	}
	return FulfillmentPending
}
