package domain

import (
	"fmt"
	"math"
	"strings"
)

// CrowdLevel is the tri-state occupancy classification.
type CrowdLevel string

const (
	CrowdLow    CrowdLevel = "low"
	CrowdMedium CrowdLevel = "medium"
	CrowdHigh   CrowdLevel = "high"
)

// MaxCount bounds crowd counts and capacities.
const MaxCount = math.MaxInt32

// Classification thresholds in percent of capacity, both exclusive.
const (
	highThresholdPercent   = 75
	mediumThresholdPercent = 35
)

// ParseCrowdLevel accepts low, medium or high (case-insensitive).
func ParseCrowdLevel(s string) (CrowdLevel, error) {
	switch CrowdLevel(strings.ToLower(strings.TrimSpace(s))) {
	case CrowdLow:
		return CrowdLow, nil
	case CrowdMedium:
		return CrowdMedium, nil
	case CrowdHigh:
		return CrowdHigh, nil
	default:
		return "", Invalid("crowdLevel", fmt.Sprintf("unknown level %q", s))
	}
}

// CheckCount rejects a count that is negative or above MaxCount.
func CheckCount(field string, n int) error {
	if n < 0 {
		return Invalid(field, "must not be negative")
	}
	if n > MaxCount {
		return Invalid(field, "is out of range")
	}
	return nil
}

// Classify maps a count to a crowd level. Capacity must be positive and both
// values at most MaxCount; callers guarantee this through NewPlace and
// CheckCount.
func Classify(count, capacity int) CrowdLevel {
	scaled := int64(count) * 100
	switch {
	case scaled > int64(highThresholdPercent)*int64(capacity):
		return CrowdHigh
	case scaled > int64(mediumThresholdPercent)*int64(capacity):
		return CrowdMedium
	default:
		return CrowdLow
	}
}

// RoundMean returns the arithmetic mean of counts rounded half away from zero.
// It returns fallback for an empty slice.
func RoundMean(counts []int, fallback int) int {
	if len(counts) == 0 {
		return fallback
	}
	var sum int64
	for _, c := range counts {
		sum += int64(c)
	}
	return int(math.Round(float64(sum) / float64(len(counts))))
}
