package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	id "rekamed/pkg/domain"
	"rekamed/pkg/requestcontext"
)

const testUserID = "550e8400-e29b-41d4-a716-446655440001"

type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*JWTClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

type captureHandler struct {
	called bool
	ctx    context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *MockJWTValidator
	next      *captureHandler
	handler   http.Handler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockJWTValidator)
	s.next = &captureHandler{}
	s.handler = RequireAuth(s.validator, slog.New(slog.NewTextHandler(io.Discard, nil)))(s.next)
}

func (s *AuthMiddlewareSuite) serve(authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestValidTokenPopulatesPrincipal() {
	s.validator.On("ValidateToken", "good").Return(&JWTClaims{UserID: testUserID, Name: "Budi", Role: "patient"}, nil)

	w := s.serve("Bearer good")
	s.Equal(http.StatusOK, w.Code)
	s.Require().True(s.next.called)

	p, ok := requestcontext.GetPrincipal(s.next.ctx)
	s.Require().True(ok)
	s.Equal(testUserID, p.UserID.String())
	s.Equal(id.RolePatient, p.Role)
	s.Equal("Budi", p.Name)
}

func (s *AuthMiddlewareSuite) TestMissingHeader() {
	w := s.serve("")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.False(s.next.called)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("unauthorized", body["error"])
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	s.validator.On("ValidateToken", "bad").Return(nil, errors.New("signature"))
	s.Equal(http.StatusUnauthorized, s.serve("Bearer bad").Code)
	s.False(s.next.called)
}

func (s *AuthMiddlewareSuite) TestMalformedClaims() {
	s.validator.On("ValidateToken", "no-uuid").Return(&JWTClaims{UserID: "42", Role: "doctor"}, nil)
	s.validator.On("ValidateToken", "no-role").Return(&JWTClaims{UserID: testUserID, Role: "admin"}, nil)

	s.Equal(http.StatusUnauthorized, s.serve("Bearer no-uuid").Code)
	s.Equal(http.StatusUnauthorized, s.serve("Bearer no-role").Code)
	s.False(s.next.called)
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uid, _ := id.ParseUserID(testUserID)
	doctorsOnly := RequireRole(logger, id.RoleDoctor)

	cases := []struct {
		name   string
		ctx    context.Context
		status int
	}{
		{"doctor allowed", requestcontext.WithPrincipal(context.Background(), requestcontext.Principal{UserID: uid, Role: id.RoleDoctor}), http.StatusOK},
		{"patient forbidden", requestcontext.WithPrincipal(context.Background(), requestcontext.Principal{UserID: uid, Role: id.RolePatient}), http.StatusForbidden},
		{"anonymous unauthorized", context.Background(), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := &captureHandler{}
			w := httptest.NewRecorder()
			doctorsOnly(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ledger", nil).WithContext(tc.ctx))
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if next.called != (tc.status == http.StatusOK) {
				t.Fatalf("next called = %v", next.called)
			}
		})
	}
}
