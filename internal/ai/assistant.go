package ai

import (
	"context"
)

// Tier selects between the cheap and the thorough model of a provider.
type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// Completer performs a single prompt/completion round trip.
type Completer interface {
	Complete(ctx context.Context, prompt string, tier Tier) (string, error)
}

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, tier Tier) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, tier Tier) (string, error) {
	return f(ctx, prompt, tier)
}

// Confidence is the coarse certainty label attached to an evaluation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence maps free-form model output onto a Confidence label.
// Unknown values map to medium.
func ParseConfidence(raw string) Confidence {
	s := normalizeLabel(raw)
	switch {
	case s == "":
		return ConfidenceMedium
	case hasAny(s, "high", "高"):
		return ConfidenceHigh
	case hasAny(s, "low", "低"):
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// Importance orders information gaps.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// ParseImportance maps free-form model output onto an Importance. The second
// return value is false when the label is not recognised.
func ParseImportance(raw string) (Importance, bool) {
	s := normalizeLabel(raw)
	switch {
	case hasAny(s, "high", "高"):
		return ImportanceHigh, true
	case hasAny(s, "medium", "mid", "中"):
		return ImportanceMedium, true
	case hasAny(s, "low", "低"):
		return ImportanceLow, true
	default:
		return "", false
	}
}

// Rank returns a sortable weight, higher is more important.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 1
	default:
		return 0
	}
}
