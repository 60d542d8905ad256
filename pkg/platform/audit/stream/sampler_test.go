package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	audit "cradle/pkg/platform/audit"
)

func TestSampler_DefaultKeepsEverything(t *testing.T) {
	s := NewSampler(1.0)
	for range 100 {
		assert.True(t, s.Keep(audit.ActionCreate))
	}
}

func TestSampler_ZeroRateDropsAction(t *testing.T) {
	s := NewSampler(1.0)
	s.SetRate(audit.ActionRead, 0)

	for range 100 {
		assert.False(t, s.Keep(audit.ActionRead))
	}
	// Other actions stay on the default rate
	assert.True(t, s.Keep(audit.ActionUpdate))
}

func TestSampler_ClampsRates(t *testing.T) {
	s := NewSampler(7)
	assert.True(t, s.Keep(audit.ActionCreate), "default above 1 clamps to keep-all")

	s.SetRate(audit.ActionRead, -3)
	assert.False(t, s.Keep(audit.ActionRead), "rate below 0 clamps to drop-all")
}
