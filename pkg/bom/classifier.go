package bom

import "fmt"

// Classification labels the difference between a baseline specification
// and an edited candidate.
type Classification string

const (
	// ClassificationIncidental marks a difference that is safe to persist
	// without recomputing derived data (panel tweaks, prices, quantities,
	// edge lengths).
	ClassificationIncidental Classification = "incidental"

	// ClassificationStructural marks a difference that invalidates every
	// derived panel, hardware and cut computation: outer dimensions, body
	// material type or thickness, or the furniture type.
	ClassificationStructural Classification = "structural"
)

// IsStructural returns true if the classification requires recalculation.
func (c Classification) IsStructural() bool {
	return c == ClassificationStructural
}

// Validate checks if the classification is valid.
func (c Classification) Validate() error {
	switch c {
	case ClassificationIncidental, ClassificationStructural:
		return nil
	default:
		return fmt.Errorf("invalid classification: %s", c)
	}
}

// Classify compares a candidate specification against the baseline snapshot
// and labels the difference. The comparison is pure: no I/O, no error
// conditions. An identical candidate is always incidental.
func Classify(baseline, candidate *Specification) Classification {
	if baseline == nil || candidate == nil {
		return ClassificationIncidental
	}

	if baseline.Dimensions != candidate.Dimensions {
		return ClassificationStructural
	}
	if baseline.BodyMaterial != candidate.BodyMaterial {
		return ClassificationStructural
	}
	if baseline.FurnitureType != candidate.FurnitureType {
		return ClassificationStructural
	}

	return ClassificationIncidental
}
