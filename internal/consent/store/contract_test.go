package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rekamed/internal/consent/models"
	"rekamed/internal/consent/store"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
	"rekamed/pkg/testutil"
)

// contractSuite holds the behavior every Store must share. Concrete suites
// set newStore and seedUsers.
type contractSuite struct {
	suite.Suite
	newStore  func() store.Store
	seedUsers func(parties ...*testutil.Party)

	st      store.Store
	doctor  *testutil.Party
	patient *testutil.Party
}

func (s *contractSuite) SetupTest() {
	s.st = s.newStore()
	s.doctor = testutil.NewDoctor("dr. Sari")
	s.patient = testutil.NewPatient(s.T(), "Budi")
	if s.seedUsers != nil {
		s.seedUsers(s.doctor, s.patient)
	}
}

func (s *contractSuite) pending(created time.Time) *models.Request {
	return &models.Request{
		ID:        id.NewRequestID(),
		DoctorID:  s.doctor.ID(),
		PatientID: s.patient.ID(),
		Status:    models.StatusPending,
		DataScope: models.DefaultDataScope,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func (s *contractSuite) TestCreateAndFind() {
	ctx := context.Background()
	req := s.pending(testutil.FixedNow)
	s.Require().NoError(s.st.Create(ctx, req))

	got, err := s.st.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.ID, got.ID)
	s.Equal(models.StatusPending, got.Status)
	s.True(req.CreatedAt.Equal(got.CreatedAt))

	_, err = s.st.FindByID(ctx, id.NewRequestID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *contractSuite) TestSecondPendingForPairConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.st.Create(ctx, s.pending(testutil.FixedNow)))

	err := s.st.Create(ctx, s.pending(testutil.FixedNow.Add(time.Minute)))
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func (s *contractSuite) TestUpdateStatusIsCompareAndSet() {
	ctx := context.Background()
	req := s.pending(testutil.FixedNow)
	s.Require().NoError(s.st.Create(ctx, req))

	exp := testutil.FixedNow.Add(24 * time.Hour)
	granted := *req
	granted.Status = models.StatusGranted
	granted.Duration = "24h"
	granted.ExpiresAt = &exp
	granted.UpdatedAt = testutil.FixedNow.Add(time.Minute)
	s.Require().NoError(s.st.UpdateStatus(ctx, &granted, models.StatusPending))

	denied := *req
	denied.Status = models.StatusDenied
	err := s.st.UpdateStatus(ctx, &denied, models.StatusPending)
	s.True(errors.Is(err, sentinel.ErrStateChanged))

	got, err := s.st.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusGranted, got.Status)
	s.Require().NotNil(got.ExpiresAt)
	s.True(exp.Equal(*got.ExpiresAt))

	missing := s.pending(testutil.FixedNow)
	err = s.st.UpdateStatus(ctx, missing, models.StatusPending)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *contractSuite) TestListsAreNewestFirst() {
	ctx := context.Background()
	first := s.pending(testutil.FixedNow)
	s.Require().NoError(s.st.Create(ctx, first))
	denied := *first
	denied.Status = models.StatusDenied
	s.Require().NoError(s.st.UpdateStatus(ctx, &denied, models.StatusPending))
	second := s.pending(testutil.FixedNow.Add(time.Hour))
	s.Require().NoError(s.st.Create(ctx, second))

	pair, err := s.st.ListForPair(ctx, s.doctor.ID(), s.patient.ID())
	s.Require().NoError(err)
	s.Require().Len(pair, 2)
	s.Equal(second.ID, pair[0].ID)

	byPatient, err := s.st.ListByPatient(ctx, s.patient.ID(), models.ListFilter{Status: models.StatusDenied})
	s.Require().NoError(err)
	s.Require().Len(byPatient, 1)
	s.Equal(first.ID, byPatient[0].ID)

	byDoctor, err := s.st.ListByDoctor(ctx, s.doctor.ID(), models.ListFilter{})
	s.Require().NoError(err)
	s.Len(byDoctor, 2)

	latest, err := s.st.LatestForPairs(ctx, s.doctor.ID(), []id.UserID{s.patient.ID(), s.doctor.ID()})
	s.Require().NoError(err)
	s.Require().Len(latest, 1)
	s.Equal(second.ID, latest[s.patient.ID()].ID)
}

type MemoryStoreSuite struct {
	contractSuite
}

func TestMemoryStoreSuite(t *testing.T) {
	s := new(MemoryStoreSuite)
	s.newStore = func() store.Store { return store.NewInMemory() }
	suite.Run(t, s)
}
