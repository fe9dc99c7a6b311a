package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySeverityBoundaries(t *testing.T) {
	cases := []struct {
		km   float64
		want ConjunctionSeverity
	}{
		{0.5, ConjunctionCritical},
		{0.999, ConjunctionCritical},
		{1.0, ConjunctionHigh},
		{4.999, ConjunctionHigh},
		{5.0, ConjunctionMedium},
		{9.999, ConjunctionMedium},
		{10.0, ConjunctionLow},
		{25.0, ConjunctionLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifySeverity(c.km), "miss distance %v km", c.km)
	}
}

func TestSeverityStringsAreStable(t *testing.T) {
	assert.Equal(t, "critical", ConjunctionCritical.String())
	assert.Equal(t, "high", ConjunctionHigh.String())
	assert.Equal(t, "medium", ConjunctionMedium.String())
	assert.Equal(t, "low", ConjunctionLow.String())
}

func TestMissionStatusStrings(t *testing.T) {
	assert.Equal(t, "pending", MissionPending.String())
	assert.Equal(t, "scheduled", MissionScheduled.String())
	assert.Equal(t, "running", MissionRunning.String())
	assert.Equal(t, "completed", MissionCompleted.String())
	assert.Equal(t, "failed", MissionFailed.String())
	assert.Equal(t, "canceled", MissionCanceled.String())
}
