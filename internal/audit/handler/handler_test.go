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

	"rekamed/internal/access"
	"rekamed/internal/audit"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ForPatient(ctx context.Context, patientID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	args := m.Called(ctx, patientID, filter)
	e, _ := args.Get(0).([]*audit.AccessLogEntry)
	return e, args.Error(1)
}

func (m *mockReader) ForActor(ctx context.Context, actorID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error) {
	args := m.Called(ctx, actorID, filter)
	e, _ := args.Get(0).([]*audit.AccessLogEntry)
	return e, args.Error(1)
}

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Authorize(ctx context.Context, a access.Attempt) (*access.Decision, error) {
	args := m.Called(ctx, a)
	d, _ := args.Get(0).(*access.Decision)
	return d, args.Error(1)
}

type AccessLogHandlerSuite struct {
	suite.Suite
	log       *mockReader
	gate      *mockGate
	router    chi.Router
	principal requestcontext.Principal
	patientID id.UserID
	doctorID  id.UserID
}

func TestAccessLogHandlerSuite(t *testing.T) {
	suite.Run(t, new(AccessLogHandlerSuite))
}

func (s *AccessLogHandlerSuite) SetupTest() {
	s.log = new(mockReader)
	s.gate = new(mockGate)
	s.patientID = id.UserID(uuid.New())
	s.doctorID = id.UserID(uuid.New())

	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(r.Context(), s.principal)))
		})
	})
	New(s.log, s.gate, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *AccessLogHandlerSuite) do(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (s *AccessLogHandlerSuite) TestPatientSeesOwnLog() {
	s.principal = requestcontext.Principal{UserID: s.patientID, Role: id.RolePatient}
	entries := []*audit.AccessLogEntry{{BlockID: 3, PatientID: s.patientID, Status: audit.StatusAllowed}}
	s.log.On("ForPatient", mock.Anything, s.patientID, audit.LogFilter{Limit: 10}).Return(entries, nil).Once()

	w := s.do("/log-access?limit=10")

	s.Equal(http.StatusOK, w.Code)
	var got []audit.AccessLogEntry
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Require().Len(got, 1)
	s.Equal(int64(3), got[0].BlockID)
}

func (s *AccessLogHandlerSuite) TestDoctorSeesOwnActions() {
	s.principal = requestcontext.Principal{UserID: s.doctorID, Role: id.RoleDoctor}
	s.log.On("ForActor", mock.Anything, s.doctorID, audit.LogFilter{}).Return([]*audit.AccessLogEntry{}, nil).Once()

	w := s.do("/log-access")

	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`[]`, w.Body.String())
	s.log.AssertNotCalled(s.T(), "ForPatient", mock.Anything, mock.Anything, mock.Anything)
}

func (s *AccessLogHandlerSuite) TestPatientReadsOwnLogByIDWithoutGate() {
	s.principal = requestcontext.Principal{UserID: s.patientID, Role: id.RolePatient}
	s.log.On("ForPatient", mock.Anything, s.patientID, audit.LogFilter{}).Return([]*audit.AccessLogEntry{}, nil).Once()

	s.Equal(http.StatusOK, s.do("/log-access/"+s.patientID.String()).Code)
	s.gate.AssertNotCalled(s.T(), "Authorize", mock.Anything, mock.Anything)
}

func (s *AccessLogHandlerSuite) TestDoctorIsGated() {
	s.principal = requestcontext.Principal{UserID: s.doctorID, Role: id.RoleDoctor}
	attempt := access.Attempt{
		ActorID:   s.doctorID,
		ActorRole: id.RoleDoctor,
		PatientID: s.patientID,
		Action:    audit.ActionAccessLogRead,
		Subject:   "access_log",
	}

	s.Run("denied", func() {
		s.gate.On("Authorize", mock.Anything, attempt).
			Return(&access.Decision{}, dErrors.New(dErrors.CodePermissionDenied, "doctor has no active consent to access this patient's records")).Once()
		w := s.do("/log-access/" + s.patientID.String())
		s.Equal(http.StatusForbidden, w.Code)
		s.Contains(w.Body.String(), "permission_denied")
	})

	s.Run("allowed", func() {
		s.gate.On("Authorize", mock.Anything, attempt).Return(&access.Decision{Allowed: true}, nil).Once()
		s.log.On("ForPatient", mock.Anything, s.patientID, audit.LogFilter{}).Return([]*audit.AccessLogEntry{}, nil).Once()
		s.Equal(http.StatusOK, s.do("/log-access/"+s.patientID.String()).Code)
	})
}

func (s *AccessLogHandlerSuite) TestBadInput() {
	s.principal = requestcontext.Principal{UserID: s.doctorID, Role: id.RoleDoctor}
	s.Equal(http.StatusBadRequest, s.do("/log-access/not-a-uuid").Code)
	s.Equal(http.StatusBadRequest, s.do("/log-access?limit=-1").Code)
}
