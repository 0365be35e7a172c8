package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

var (
	userID     = id.UserID(uuid.New())
	jwtService = NewJWTService("test-signing-key", "rekamed-test", time.Hour)
)

func Test_GenerateAndValidate(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(context.Background(), userID, "Dr. Sari", id.RoleDoctor)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "Dr. Sari", claims.Name)
	assert.Equal(t, "doctor", claims.Role)
}

func Test_GenerateRejectsUnknownRole(t *testing.T) {
	_, err := jwtService.GenerateAccessToken(context.Background(), userID, "x", id.Role("admin"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_Expired(t *testing.T) {
	past := requestcontext.WithTime(context.Background(), time.Now().Add(-2*time.Hour))
	token, err := jwtService.GenerateAccessToken(past, userID, "Budi", id.RolePatient)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorContains(t, err, "token expired")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	other := NewJWTService("another-key", "rekamed-test", time.Hour)
	token, err := other.GenerateAccessToken(context.Background(), userID, "Budi", id.RolePatient)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(token)
	require.ErrorContains(t, err, "invalid token")

	foreign := NewJWTService("test-signing-key", "someone-else", time.Hour)
	token, err = foreign.GenerateAccessToken(context.Background(), userID, "Budi", id.RolePatient)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
}

func Test_ValidateToken_RejectsNoneAlg(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{UserID: userID.String(), Role: "doctor"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(raw)
	require.Error(t, err)
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(context.Background(), userID, "Budi", id.RolePatient)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "patient", claims.Role)
	assert.Equal(t, "Budi", claims.Name)
}
