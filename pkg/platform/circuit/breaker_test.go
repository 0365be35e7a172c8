package circuit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errBackend = errors.New("backend down")

func TestBreakerTransitions(t *testing.T) {
	var changes []bool
	b := New("projection",
		WithFailureThreshold(2),
		WithSuccessThreshold(2),
		WithOnChange(func(name string, open bool) {
			assert.Equal(t, "projection", name)
			changes = append(changes, open)
		}),
	)

	assert.False(t, b.Observe(errBackend))
	assert.False(t, b.Observe(nil), "a success resets the failure run")
	assert.False(t, b.Observe(errBackend))
	assert.True(t, b.Observe(errBackend))
	assert.True(t, b.Open())

	assert.True(t, b.Observe(nil))
	assert.True(t, b.Observe(errBackend), "a failure while open restarts the success run")
	assert.True(t, b.Observe(nil))
	assert.False(t, b.Observe(nil))

	assert.Equal(t, []bool{true, false}, changes)
}

func TestBreakerReset(t *testing.T) {
	b := New("x", WithFailureThreshold(1))
	assert.True(t, b.Observe(errBackend))
	b.Reset()
	assert.False(t, b.Open())
}

func TestBreakerDefaults(t *testing.T) {
	b := New("x", WithFailureThreshold(0), nil)
	for range 4 {
		assert.False(t, b.Observe(errBackend))
	}
	assert.True(t, b.Observe(errBackend))
}
