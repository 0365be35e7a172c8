package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "rekamed/pkg/domain"
)

func testRequest() *Request {
	return &Request{
		ID:        id.RequestID(uuid.MustParse("0b7c1d2e-3f40-4a5b-8c6d-7e8f90a1b2c3")),
		DoctorID:  id.UserID(uuid.MustParse("d0c70000-0000-4000-8000-000000000001")),
		PatientID: id.UserID(uuid.MustParse("9a710000-0000-4000-8000-000000000002")),
		Status:    StatusPending,
	}
}

func TestMessage(t *testing.T) {
	r := testRequest()

	t.Run("grant carries duration", func(t *testing.T) {
		want := "rekamedchain/consent/v1\n" +
			"action=grant\n" +
			"request=0b7c1d2e-3f40-4a5b-8c6d-7e8f90a1b2c3\n" +
			"patient=9a710000-0000-4000-8000-000000000002\n" +
			"doctor=d0c70000-0000-4000-8000-000000000001\n" +
			"duration=24h"
		assert.Equal(t, want, string(Message(ActionGrant, r, "24h")))
	})

	t.Run("deny and revoke ignore duration", func(t *testing.T) {
		assert.Contains(t, string(Message(ActionDeny, r, "24h")), "action=deny\n")
		assert.Contains(t, string(Message(ActionDeny, r, "24h")), "duration=-")
		assert.Contains(t, string(Message(ActionRevoke, r, "")), "duration=-")
	})

	t.Run("actions never share a message", func(t *testing.T) {
		assert.NotEqual(t, Message(ActionGrant, r, ""), Message(ActionDeny, r, ""))
		assert.NotEqual(t, Message(ActionDeny, r, ""), Message(ActionRevoke, r, ""))
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in        string
		canonical string
		d         time.Duration
		wantErr   bool
	}{
		{in: "permanent", canonical: "permanent"},
		{in: " Permanent ", canonical: "permanent"},
		{in: "24h", canonical: "24h", d: 24 * time.Hour},
		{in: "7d", canonical: "7d", d: 7 * 24 * time.Hour},
		{in: "90m", canonical: "90m", d: 90 * time.Minute},
		{in: "0h", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "xd", wantErr: true},
		{in: "forever", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			canonical, d, err := ParseDuration(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.canonical, canonical)
			assert.Equal(t, tt.d, d)
		})
	}
}

func TestLazyExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	exp := now.Add(24 * time.Hour)
	r := testRequest()
	r.Status = StatusGranted
	r.ExpiresAt = &exp

	assert.True(t, r.IsActive(now))
	assert.Equal(t, "granted", r.EffectiveStatus(now))

	later := exp
	assert.True(t, r.IsExpired(later))
	assert.False(t, r.IsActive(later))
	assert.Equal(t, StatusExpired, r.EffectiveStatus(later))
	assert.Equal(t, StatusGranted, r.Status, "expiry never rewrites the stored status")

	r.ExpiresAt = nil
	assert.True(t, r.IsActive(later.Add(1000*time.Hour)))
}

func TestInactiveStatuses(t *testing.T) {
	now := time.Now()
	for _, st := range []Status{StatusDenied, StatusRevoked} {
		r := testRequest()
		r.Status = st
		assert.False(t, r.IsActive(now), st)
	}
}
