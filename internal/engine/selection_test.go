package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaidashi/support-portal/internal/models"
)

func TestSelection_Toggle(t *testing.T) {
	s := NewSelection("a", "b", "a", "")
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	s.Toggle("a")
	assert.False(t, s.Contains("a"))
	s.Toggle("c")
	s.Toggle("a")
	assert.Equal(t, []string{"b", "c", "a"}, s.IDs())
}

func TestSelection_ToggleAll(t *testing.T) {
	visible := []*models.Order{{ID: "a"}, {ID: "b"}}
	s := NewSelection("x")

	s.ToggleAll(visible)
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	s.ToggleAll(visible)
	assert.Zero(t, s.Len())
}

func TestSelection_EffectiveDropsStaleIDs(t *testing.T) {
	s := NewSelection("a", "gone", "c")

	// switching category does not prune the selection
	visible := []*models.Order{{ID: "c"}, {ID: "a"}, {ID: "d"}}

	assert.Equal(t, []string{"a", "c"}, s.Effective(visible))
	assert.Equal(t, 3, s.Len())
	assert.Empty(t, NewSelection("gone").Effective(visible))
}
