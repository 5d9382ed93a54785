// Package compare produces per-artifact verdicts for a baseline tree and an
// actual tree under a tolerance policy.
package compare

import (
	"encoding/json"
	"math"

	"github.com/leapstack-labs/feffcheck/internal/policy"
)

// Reasons for presence failures.
const (
	ReasonMissingBaseline = "Missing baseline artifact"
	ReasonMissingActual   = "Missing actual artifact"
)

// Verdict is the comparison outcome for one artifact.
type Verdict struct {
	ArtifactPath string     `json:"artifact_path"`
	Passed       bool       `json:"passed"`
	Reason       *string    `json:"reason"`
	Comparison   Comparison `json:"comparison"`
}

// Comparison records the resolved mode and its metrics.
type Comparison struct {
	Mode            policy.Mode `json:"mode"`
	MatchedCategory *string     `json:"matched_category"`
	Metrics         Metrics     `json:"metrics"`
}

// ReasonText returns the reason or an empty string.
func (v Verdict) ReasonText() string {
	if v.Reason == nil {
		return ""
	}
	return *v.Reason
}

// Metrics is implemented by the mode-specific metric records. Kind always
// mirrors the comparison mode.
type Metrics interface {
	MetricsKind() policy.Mode
}

// ExactTextMetrics describes a byte-wise comparison.
type ExactTextMetrics struct {
	Kind                policy.Mode `json:"kind"`
	BaselineBytes       int         `json:"baseline_bytes"`
	ActualBytes         int         `json:"actual_bytes"`
	FirstMismatchOffset *int        `json:"first_mismatch_offset"`
}

func (m ExactTextMetrics) MetricsKind() policy.Mode { return m.Kind }

// WhitespaceMetrics describes a normalized text comparison.
type WhitespaceMetrics struct {
	Kind              policy.Mode `json:"kind"`
	BaselineBytes     int         `json:"baseline_bytes"`
	ActualBytes       int         `json:"actual_bytes"`
	FirstMismatchLine *int        `json:"first_mismatch_line"`
}

func (m WhitespaceMetrics) MetricsKind() policy.Mode { return m.Kind }

// ToleranceMetrics echoes the applied tolerance.
type ToleranceMetrics struct {
	AbsTol        float64 `json:"abs_tol"`
	RelTol        float64 `json:"rel_tol"`
	RelativeFloor float64 `json:"relative_floor"`
}

func (m ToleranceMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AbsTol        jsonFloat `json:"abs_tol"`
		RelTol        jsonFloat `json:"rel_tol"`
		RelativeFloor jsonFloat `json:"relative_floor"`
	}{jsonFloat(m.AbsTol), jsonFloat(m.RelTol), jsonFloat(m.RelativeFloor)})
}

// NumericMetrics describes a tolerance comparison of parsed value sequences.
type NumericMetrics struct {
	Kind             policy.Mode      `json:"kind"`
	BaselineValues   int              `json:"baseline_values"`
	ActualValues     int              `json:"actual_values"`
	ComparedValues   int              `json:"compared_values"`
	MismatchedValues int              `json:"mismatched_values"`
	MaxAbsDelta      float64          `json:"max_abs_delta"`
	MaxRelDelta      float64          `json:"max_rel_delta"`
	Tolerance        ToleranceMetrics `json:"tolerance"`
}

func (m NumericMetrics) MetricsKind() policy.Mode { return m.Kind }

func (m NumericMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind             policy.Mode      `json:"kind"`
		BaselineValues   int              `json:"baseline_values"`
		ActualValues     int              `json:"actual_values"`
		ComparedValues   int              `json:"compared_values"`
		MismatchedValues int              `json:"mismatched_values"`
		MaxAbsDelta      jsonFloat        `json:"max_abs_delta"`
		MaxRelDelta      jsonFloat        `json:"max_rel_delta"`
		Tolerance        ToleranceMetrics `json:"tolerance"`
	}{
		Kind:             m.Kind,
		BaselineValues:   m.BaselineValues,
		ActualValues:     m.ActualValues,
		ComparedValues:   m.ComparedValues,
		MismatchedValues: m.MismatchedValues,
		MaxAbsDelta:      jsonFloat(m.MaxAbsDelta),
		MaxRelDelta:      jsonFloat(m.MaxRelDelta),
		Tolerance:        m.Tolerance,
	})
}

// jsonFloat encodes NaN and infinities as null, which encoding/json rejects.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
