package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		res  Result
		want time.Duration
	}{
		{"allowed", Result{Allowed: true, ResetAt: now.Add(time.Minute)}, 0},
		{"whole seconds", Result{ResetAt: now.Add(time.Minute)}, time.Minute},
		{"fraction", Result{ResetAt: now.Add(1500 * time.Millisecond)}, 2 * time.Second},
		{"already reset", Result{ResetAt: now.Add(-time.Second)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.RetryAfter(now))
		})
	}
}

func TestLimitEnabled(t *testing.T) {
	assert.True(t, Limit{Requests: 1, Window: time.Second}.Enabled())
	assert.False(t, Limit{Requests: 0, Window: time.Second}.Enabled())
	assert.False(t, Limit{Requests: 1}.Enabled())
}
