package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaidashi/support-portal/internal/models"
)

// allCombinations enumerates every one of the 256 stage flag combinations
func allCombinations() []models.Stages {
	out := make([]models.Stages, 0, 1<<models.StageCount)

	for mask := 0; mask < 1<<models.StageCount; mask++ {
		var s models.Stages
		for i := 0; i < models.StageCount; i++ {
			s.Set(models.Stage(i), mask&(1<<i) != 0)
		}
		out = append(out, s)
	}

	return out
}

func TestResolveStatus_DeliveredTakesPrecedence(t *testing.T) {
	for _, s := range allCombinations() {
		if !s.Delivered {
			continue
		}
		assert.Equal(t, "Delivered", ResolveStatus(s), "%+v", s)
	}
}

func TestResolveStatus_NothingSet(t *testing.T) {
	assert.Equal(t, "Unfulfilled", ResolveStatus(models.Stages{}))
}

func TestResolveStatus_LatestFlagWins(t *testing.T) {
	tests := []struct {
		name   string
		stages models.Stages
		want   string
	}{
		{"embroidery only", models.Stages{InEmbroidery: true}, "In Progress"},
		{"customizing", models.Stages{InEmbroidery: true, Customizing: true}, "Customizing"},
		{"washing", models.Stages{Washing: true}, "Washing"},
		{"ready", models.Stages{ReadyToDispatch: true}, "Ready"},
		{"dispatched with gap", models.Stages{InEmbroidery: true, SentToDelhi: true}, "Dispatched"},
		{"left xportel", models.Stages{LeftXportel: true}, "Left Xportel"},
		{"in transit", models.Stages{ReachedCountry: true, InEmbroidery: true}, "In Transit"},
		{"delivered without earlier stages", models.Stages{Delivered: true}, "Delivered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStatus(tt.stages))
		})
	}
}

func TestIsFulfilled(t *testing.T) {
	for _, s := range allCombinations() {
		want := s.SentToDelhi || s.LeftXportel || s.ReachedCountry || s.Delivered
		assert.Equal(t, want, IsFulfilled(s), "%+v", s)
	}

	assert.Equal(t, "Fulfilled", FulfillmentLabel(models.Stages{SentToDelhi: true}))
	assert.Equal(t, "Unfulfilled", FulfillmentLabel(models.Stages{ReadyToDispatch: true}))
}

func TestToggleWashingTwiceRestoresStatus(t *testing.T) {
	o := &models.Order{Stages: models.Stages{InEmbroidery: true, Customizing: true}}
	before := ResolveStatus(o.Stages)

	models.SetStage(models.StageWashing, true).Apply(o)
	assert.Equal(t, "Washing", ResolveStatus(o.Stages))

	models.SetStage(models.StageWashing, false).Apply(o)
	assert.Equal(t, before, ResolveStatus(o.Stages))
}

func TestPipeline(t *testing.T) {
	p := Pipeline()

	assert.Len(t, p, models.StageCount)
	assert.Equal(t, "in_embroidery", p[0].Key)
	assert.Equal(t, "delivered", p[len(p)-1].Key)
	assert.False(t, p[models.StageReadyToDispatch].Fulfilled)
	assert.True(t, p[DispatchBoundary].Fulfilled)

	p[0].Title = "changed"
	assert.Equal(t, "In Embroidery", Pipeline()[0].Title)
}
