package models

import "fmt"

// Score is a non-negative weighted activity total
type Score int

// InvalidValueError reports a value object built from an out-of-range input
type InvalidValueError struct {
	Field string
	Value interface{}
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Value)
}

// NewScore validates raw and returns it as a Score.
func NewScore(raw int) (Score, error) {
	if raw < 0 {
		return 0, &InvalidValueError{Field: "score", Value: raw}
	}
	return Score(raw), nil
}

// Int returns the score as a plain int.
func (s Score) Int() int {
	return int(s)
}
