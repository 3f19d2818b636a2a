// Package estimator turns a queue position into a human readable wait estimate.
package estimator

import (
	"fmt"
	"math"
)

const (
	LabelCalculating = "Calculating..."
	LabelYourTurn    = "Your turn!"
)

// Estimate is the result of an ETA calculation
type Estimate struct {
	Label       string
	PeopleAhead int64
	// WaitSeconds is nil while there is not enough data to estimate
	WaitSeconds *int64
}

// Calculate estimates the wait for a ticket at position given the served
// pointer and the average seconds per participant. It never fails.
func Calculate(position, servedPointer, avgWaitSeconds int64) Estimate {
	ahead := PeopleAhead(position, servedPointer)

	if avgWaitSeconds <= 0 {
		return Estimate{Label: LabelCalculating, PeopleAhead: ahead}
	}

	total := saturatingMul(ahead, avgWaitSeconds)
	est := Estimate{PeopleAhead: ahead, WaitSeconds: &total}

	if position <= servedPointer {
		est.Label = LabelYourTurn
		return est
	}

	est.Label = formatMinutes(total/60 + boolToInt(total%60 != 0))
	return est
}

// saturatingMul multiplies non-negative a and b, clamping at MaxInt64
func saturatingMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Label is a shorthand for Calculate(...).Label
func Label(position, servedPointer, avgWaitSeconds int64) string {
	return Calculate(position, servedPointer, avgWaitSeconds).Label
}

// PeopleAhead returns max(0, position - servedPointer)
func PeopleAhead(position, servedPointer int64) int64 {
	if position <= servedPointer {
		return 0
	}
	return position - servedPointer
}

func formatMinutes(minutes int64) string {
	switch {
	case minutes < 1:
		return "Less than 1 minute"
	case minutes == 1:
		return "About 1 minute"
	case minutes < 60:
		return fmt.Sprintf("About %d minutes", minutes)
	}

	hours := minutes / 60
	rest := minutes % 60
	switch {
	case rest == 0 && hours == 1:
		return "About 1 hour"
	case rest == 0:
		return fmt.Sprintf("About %d hours", hours)
	default:
		return fmt.Sprintf("About %dh %dm", hours, rest)
	}
}
