// Package reading computes how far a reader has scrolled through a book.
package reading

import (
	"fmt"
	"math"
)

// Viewport describes the reader's scroll container.
type Viewport struct {
	ScrollTop    float64 `json:"scrollTop"`
	ScrollHeight float64 `json:"scrollHeight"`
	ClientHeight float64 `json:"clientHeight"`
}

// FieldError names the measurement that failed validation.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s must be a non-negative number", e.Field)
}

// Validate rejects negative or non-finite measurements.
func (v Viewport) Validate() error {
	fields := []struct {
		name string
		val  float64
	}{
		{"scrollTop", v.ScrollTop},
		{"scrollHeight", v.ScrollHeight},
		{"clientHeight", v.ClientHeight},
	}
	for _, f := range fields {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) || f.val < 0 {
			return &FieldError{Field: f.name}
		}
	}
	return nil
}

// Progress returns the scroll position as a percentage in [0,100]. A view that
// cannot scroll is complete when it has any content.
func Progress(v Viewport) float64 {
	scrollable := v.ScrollHeight - v.ClientHeight
	if scrollable <= 0 {
		if v.ScrollHeight > 0 {
			return 100
		}
		return 0
	}
	pct := v.ScrollTop / scrollable * 100
	return math.Min(math.Max(pct, 0), 100)
}
