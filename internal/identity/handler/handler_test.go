package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"rekamed/internal/identity/models"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) SearchPatients(ctx context.Context, query string, limit int) ([]*models.User, error) {
	args := m.Called(ctx, query, limit)
	u, _ := args.Get(0).([]*models.User)
	return u, args.Error(1)
}

type mockStatuses struct {
	mock.Mock
}

func (m *mockStatuses) PairStatuses(ctx context.Context, doctorID id.UserID, patientIDs []id.UserID) (map[id.UserID]string, error) {
	args := m.Called(ctx, doctorID, patientIDs)
	s, _ := args.Get(0).(map[id.UserID]string)
	return s, args.Error(1)
}

type UsersHandlerSuite struct {
	suite.Suite
	users     *mockUsers
	statuses  *mockStatuses
	router    chi.Router
	principal requestcontext.Principal
}

func TestUsersHandlerSuite(t *testing.T) {
	suite.Run(t, new(UsersHandlerSuite))
}

func (s *UsersHandlerSuite) SetupTest() {
	s.users = new(mockUsers)
	s.statuses = new(mockStatuses)
	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(r.Context(), s.principal)))
		})
	})
	New(s.users, s.statuses, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *UsersHandlerSuite) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (s *UsersHandlerSuite) TestMe() {
	uid := id.UserID(uuid.New())
	s.principal = requestcontext.Principal{UserID: uid, Role: id.RolePatient}

	s.Run("profile", func() {
		s.users.On("Get", mock.Anything, uid).Return(&models.User{
			ID: uid, Name: "Budi", Email: "budi@rs.example", Role: id.RolePatient, PublicKey: "0xabc",
		}, nil).Once()

		w := s.get("/users/me")

		s.Equal(http.StatusOK, w.Code)
		var p models.Profile
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &p))
		s.Equal("Budi", p.Name)
		s.True(p.HasSigningKey)
		s.Contains(p.FormattedID, "MED-")
	})

	s.Run("unknown", func() {
		s.users.On("Get", mock.Anything, uid).Return(nil, dErrors.New(dErrors.CodeNotFound, "user not found")).Once()
		s.Equal(http.StatusNotFound, s.get("/users/me").Code)
	})
}

func (s *UsersHandlerSuite) TestSearchJoinsConsentStatus() {
	doctorID := id.UserID(uuid.New())
	s.principal = requestcontext.Principal{UserID: doctorID, Role: id.RoleDoctor}
	asked := &models.User{ID: id.UserID(uuid.New()), Name: "Budi", Email: "budi@rs.example", Role: id.RolePatient}
	fresh := &models.User{ID: id.UserID(uuid.New()), Name: "Bunga", Email: "bunga@rs.example", Role: id.RolePatient}

	s.users.On("SearchPatients", mock.Anything, "bu", 5).Return([]*models.User{asked, fresh}, nil).Once()
	s.statuses.On("PairStatuses", mock.Anything, doctorID, []id.UserID{asked.ID, fresh.ID}).
		Return(map[id.UserID]string{asked.ID: "granted"}, nil).Once()

	w := s.get("/users/search?q=bu&limit=5")

	s.Equal(http.StatusOK, w.Code)
	var got []models.PublicUser
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Require().Len(got, 2)
	s.Equal("granted", got[0].ConsentStatus)
	s.Equal(models.ConsentNotRequested, got[1].ConsentStatus)
}

func (s *UsersHandlerSuite) TestSearchIsDoctorOnly() {
	s.principal = requestcontext.Principal{UserID: id.UserID(uuid.New()), Role: id.RolePatient}
	s.Equal(http.StatusForbidden, s.get("/users/search?q=bu").Code)
	s.users.AssertNotCalled(s.T(), "SearchPatients", mock.Anything, mock.Anything, mock.Anything)
}
