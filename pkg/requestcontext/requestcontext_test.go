package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "rekamed/pkg/domain"
)

func TestPrincipal(t *testing.T) {
	ctx := context.Background()
	_, ok := GetPrincipal(ctx)
	assert.False(t, ok, "empty context has no principal")

	userID := id.UserID(uuid.New())
	ctx = WithPrincipal(ctx, Principal{UserID: userID, Name: "Siti", Role: id.RolePatient})
	p, ok := GetPrincipal(ctx)
	assert.True(t, ok)
	assert.Equal(t, id.RolePatient, p.Role)
	assert.Equal(t, userID, UserID(ctx))
}

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	assert.False(t, Now(context.Background()).Before(before))

	pinned := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, pinned, Now(WithTime(context.Background(), pinned)))
}

func TestClientMetadata(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "10.0.0.7", "okhttp/4.9")
	assert.Equal(t, "10.0.0.7", ClientIP(ctx))
	assert.Equal(t, "okhttp/4.9", UserAgent(ctx))
	assert.Empty(t, RequestID(ctx))
}
