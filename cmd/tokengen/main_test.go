package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "rekamed/internal/jwt_token"
	"rekamed/pkg/crypto/signature"
)

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestAccessTokenValidates(t *testing.T) {
	uid := "550e8400-e29b-41d4-a716-446655440000"
	out := execute(t, "", "access", "--role", "patient", "--name", "Budi", "--user-id", uid, "--json")

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	claims, err := jwttoken.NewJWTService(devSigningKey, defaultIssuer, 0).ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, uid, claims.UserID)
	assert.Equal(t, "patient", claims.Role)
}

func TestKeypairThenSignVerifies(t *testing.T) {
	var kp map[string]string
	require.NoError(t, json.Unmarshal([]byte(execute(t, "", "keypair", "--json")), &kp))

	msg := "rekamedchain/consent/v1\naction=grant\nrequest=r\npatient=p\ndoctor=d\nduration=24h"
	sig := strings.TrimSpace(execute(t, msg+"\n", "sign", "--key", kp["private_key"], "--message", "-"))

	assert.NoError(t, signature.NewVerifier().Verify(kp["public_key"], []byte(msg), sig))
	assert.NoError(t, signature.NewVerifier().Verify(kp["address"], []byte(msg), sig))
}

func TestAccessRejectsUnknownRole(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"access", "--role", "nurse"})
	assert.Error(t, cmd.Execute())
}
