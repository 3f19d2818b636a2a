package estimator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name          string
		position      int64
		served        int64
		avg           int64
		expectedLabel string
		expectedAhead int64
	}{
		{"no data yet", 5, 0, 0, "Calculating...", 5},
		{"already served", 3, 5, 100, "Your turn!", 0},
		{"being served", 5, 5, 100, "Your turn!", 0},
		{"two minutes", 4, 1, 30, "About 2 minutes", 3},
		{"zero seconds per person", 2, 1, 0, "Calculating...", 1},
		{"exactly one minute", 2, 1, 60, "About 1 minute", 1},
		{"rounds up to one minute", 2, 1, 5, "About 1 minute", 1},
		{"fifty nine minutes", 59, 0, 60, "About 59 minutes", 59},
		{"one hour", 60, 0, 60, "About 1 hour", 60},
		{"two hours", 2, 0, 3600, "About 2 hours", 2},
		{"hours and minutes", 1, 0, 3700, "About 1h 2m", 1},
		{"long wait", 90, 0, 61, "About 1h 32m", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := Calculate(tt.position, tt.served, tt.avg)
			assert.Equal(t, tt.expectedLabel, est.Label)
			assert.Equal(t, tt.expectedAhead, est.PeopleAhead)
		})
	}
}

func TestCalculate_WaitSeconds(t *testing.T) {
	est := Calculate(4, 1, 30)
	require.NotNil(t, est.WaitSeconds)
	assert.Equal(t, int64(90), *est.WaitSeconds)

	assert.Nil(t, Calculate(4, 1, 0).WaitSeconds)
}

func TestCalculate_NeverPanicsOnOddInput(t *testing.T) {
	assert.NotPanics(t, func() {
		Calculate(-5, 10, -1)
		Calculate(0, 0, 0)
		Calculate(1<<40, 0, 1<<10)
	})
	assert.Equal(t, int64(0), Calculate(-5, 10, 30).PeopleAhead)
}

func TestCalculate_SaturatesLongWaits(t *testing.T) {
	est := Calculate(math.MaxInt64/2, 0, 100)

	require.NotNil(t, est.WaitSeconds)
	assert.Equal(t, int64(math.MaxInt64), *est.WaitSeconds)
	assert.Equal(t, "About 2562047788015215h 31m", est.Label)

	est = Calculate(math.MaxInt64, 0, math.MaxInt64)
	assert.Equal(t, int64(math.MaxInt64), *est.WaitSeconds)
	assert.NotEqual(t, "Less than 1 minute", est.Label)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "About 2 minutes", Label(4, 1, 30))
}

func TestPeopleAhead(t *testing.T) {
	assert.Equal(t, int64(0), PeopleAhead(3, 3))
	assert.Equal(t, int64(0), PeopleAhead(1, 3))
	assert.Equal(t, int64(4), PeopleAhead(7, 3))
}
