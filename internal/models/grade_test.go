package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverageScoreUsesFixedUnitCount(t *testing.T) {
	grades := []Grade{{Unit: 1, Score: 12}, {Unit: 2, Score: 15}, {Unit: 3, Score: 9}}
	assert.InDelta(t, 12.0, AverageScore(grades), 0.0001)

	// A partial grade set still divides by the full unit count.
	partial := []Grade{{Unit: 1, Score: 18}}
	assert.InDelta(t, 6.0, AverageScore(partial), 0.0001)
}

func TestObservationThreshold(t *testing.T) {
	assert.Equal(t, ObservationApproved, Observation(11.0))
	assert.Equal(t, ObservationApproved, Observation(12.0))
	assert.Equal(t, ObservationFailed, Observation(10.99))
	assert.Equal(t, ObservationFailed, Observation(9.0))
}

func TestValidUnitAndScoreBounds(t *testing.T) {
	assert.True(t, ValidUnit(1))
	assert.True(t, ValidUnit(3))
	assert.False(t, ValidUnit(0))
	assert.False(t, ValidUnit(4))

	assert.True(t, ValidScore(0))
	assert.True(t, ValidScore(20))
	assert.False(t, ValidScore(-0.01))
	assert.False(t, ValidScore(20.01))
}
