package outcome

import "fmt"

// Insufficiency explains why an analyzer could not produce a meaningful result.
type Insufficiency struct {
	Reason    string `json:"reason"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

func (i Insufficiency) String() string {
	return fmt.Sprintf("%s (need %d, have %d)", i.Reason, i.Required, i.Available)
}

// Outcome is either a computed value or an explanation of missing input.
// The zero value is an insufficient outcome with no reason.
type Outcome[T any] struct {
	value        T
	ok           bool
	insufficient Insufficiency
}

// Sufficient wraps a computed value.
func Sufficient[T any](v T) Outcome[T] {
	return Outcome[T]{value: v, ok: true}
}

// Insufficient reports that the analyzer did not have enough data.
func Insufficient[T any](reason string, required, available int) Outcome[T] {
	return Outcome[T]{insufficient: Insufficiency{Reason: reason, Required: required, Available: available}}
}

// Value returns the computed value and whether it exists.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.ok
}

// OK reports whether the outcome carries a value.
func (o Outcome[T]) OK() bool {
	return o.ok
}

// Insufficiency returns the reason the value is missing. Only meaningful when OK is false.
func (o Outcome[T]) Insufficiency() Insufficiency {
	return o.insufficient
}
