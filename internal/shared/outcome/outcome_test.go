package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSufficient(t *testing.T) {
	o := Sufficient(42)

	v, ok := o.Value()
	assert.True(t, ok)
	assert.True(t, o.OK())
	assert.Equal(t, 42, v)
}

func TestInsufficient(t *testing.T) {
	o := Insufficient[string]("not enough customers", 30, 12)

	v, ok := o.Value()
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 30, o.Insufficiency().Required)
	assert.Equal(t, 12, o.Insufficiency().Available)
	assert.Equal(t, "not enough customers (need 30, have 12)", o.Insufficiency().String())
}

func TestZeroValueIsInsufficient(t *testing.T) {
	var o Outcome[int]
	assert.False(t, o.OK())
}
