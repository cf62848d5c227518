package inference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholds_Tier(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, TierLow, th.Tier(0.40))
	assert.Equal(t, TierMedium, th.Tier(0.4001))
	assert.Equal(t, TierMedium, th.Tier(0.70))
	assert.Equal(t, TierHigh, th.Tier(0.70001))
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, Thresholds{High: 0.5, Medium: 0.5}.Validate())
	assert.Error(t, Thresholds{High: 1.1, Medium: 0.4}.Validate())
	assert.Error(t, Thresholds{High: 0.7, Medium: -0.1}.Validate())
	assert.Error(t, Thresholds{High: 0.4, Medium: 0.7}.Validate())
	assert.Error(t, Thresholds{High: math.NaN(), Medium: 0.4}.Validate())
	assert.Error(t, Thresholds{High: 0.7, Medium: math.NaN()}.Validate())
	assert.Error(t, Thresholds{High: math.Inf(1), Medium: 0.4}.Validate())
}

func TestTierLabel(t *testing.T) {
	assert.Equal(t, "YÜKSEK", TierHigh.Label("tr"))
	assert.Equal(t, "MEDIUM", TierMedium.Label("EN"))
	assert.Equal(t, "DÜŞÜK", TierLow.Label("xx"))
	assert.Equal(t, "LOW", TierLow.String())
	assert.Equal(t, []string{"LOW", "MEDIUM", "HIGH"}, Labels("en"))
	assert.Nil(t, Labels("xx"))
}
