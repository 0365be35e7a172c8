//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jwttoken "rekamed/internal/jwt_token"
	id "rekamed/pkg/domain"
)

// Party is an enrolled doctor or patient and the credentials the suite holds
// for them.
type Party struct {
	ID    id.UserID
	Name  string
	Role  id.Role
	Token string
	Key   *ecdsa.PrivateKey
}

// TestContext holds state between steps of one scenario.
type TestContext struct {
	BaseURL          string
	AdminToken       string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	jwt     *jwttoken.JWTService
	parties map[string]*Party
	// LastConsentRequestID is the request created most recently in the scenario.
	LastConsentRequestID string
}

func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    env("BASE_URL", "http://localhost:8080"),
		AdminToken: env("ADMIN_API_TOKEN", ""),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		jwt: jwttoken.NewJWTService(
			env("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			env("JWT_ISSUER", "rekamed"),
			15*time.Minute,
		),
		parties: make(map[string]*Party),
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Enroll mints a bearer token for a user the admin API just registered.
func (tc *TestContext) Enroll(name string, uid id.UserID, role id.Role, key *ecdsa.PrivateKey) error {
	token, err := tc.jwt.GenerateAccessToken(context.Background(), uid, name, role)
	if err != nil {
		return err
	}
	tc.parties[name] = &Party{ID: uid, Name: name, Role: role, Token: token, Key: key}
	return nil
}

func (tc *TestContext) party(name string) (*Party, error) {
	p, ok := tc.parties[name]
	if !ok {
		return nil, fmt.Errorf("no enrolled user named %q", name)
	}
	return p, nil
}

func (tc *TestContext) UserID(name string) (id.UserID, error) {
	p, err := tc.party(name)
	if err != nil {
		return id.UserID{}, err
	}
	return p.ID, nil
}

func (tc *TestContext) SigningKey(name string) (*ecdsa.PrivateKey, error) {
	p, err := tc.party(name)
	if err != nil {
		return nil, err
	}
	if p.Key == nil {
		return nil, fmt.Errorf("%s has no signing key", name)
	}
	return p.Key, nil
}

// Do sends a JSON request and records the response. token may be empty.
func (tc *TestContext) Do(method, path string, body any, headers map[string]string) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	return nil
}

// As sends a request authenticated as the named party.
func (tc *TestContext) As(name, method, path string, body any) error {
	p, err := tc.party(name)
	if err != nil {
		return err
	}
	return tc.Do(method, path, body, map[string]string{"Authorization": "Bearer " + p.Token})
}

// AsAdmin sends a request with the operator token.
func (tc *TestContext) AsAdmin(method, path string, body any) error {
	return tc.Do(method, path, body, map[string]string{
		"X-Admin-Token":    tc.AdminToken,
		"X-Admin-Actor-ID": "e2e",
	})
}

func (tc *TestContext) LastStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) LastBody() []byte { return tc.LastResponseBody }

// Field reads a dotted path such as "request.status" from the last JSON object.
func (tc *TestContext) Field(path string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.LastResponseBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %v is not an object", path, cur)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", path, tc.LastResponseBody)
		}
	}
	return cur, nil
}

func (tc *TestContext) SetLastConsentRequestID(rid string) { tc.LastConsentRequestID = rid }
func (tc *TestContext) ConsentRequestID() string           { return tc.LastConsentRequestID }
