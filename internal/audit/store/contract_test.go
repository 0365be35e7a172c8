package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rekamed/internal/audit"
	"rekamed/internal/audit/store"
	id "rekamed/pkg/domain"
	"rekamed/pkg/testutil"
)

// contractSuite is the behavior every Projection must share.
type contractSuite struct {
	suite.Suite
	newStore func() audit.Projection

	st      audit.Projection
	patient id.UserID
	doctor  id.UserID
}

func (s *contractSuite) SetupTest() {
	s.st = s.newStore()
	s.patient = id.UserID(uuid.New())
	s.doctor = id.UserID(uuid.New())
}

func (s *contractSuite) entry(blockID int64, actor id.UserID, status string) *audit.AccessLogEntry {
	return &audit.AccessLogEntry{
		BlockID:     blockID,
		Kind:        audit.KindAccessAllowed,
		PatientID:   s.patient,
		PatientName: "Budi",
		DoctorID:    s.doctor,
		DoctorName:  "dr. Sari",
		ActorID:     actor,
		ActorRole:   id.RoleDoctor,
		Action:      audit.ActionRecordsRead,
		Status:      status,
		Device:      "Chrome on Linux",
		Timestamp:   testutil.FixedNow.Add(time.Duration(blockID) * time.Second),
	}
}

func (s *contractSuite) TestListsNewestFirstWithPaging() {
	ctx := context.Background()
	var entries []*audit.AccessLogEntry
	for i := range int64(5) {
		entries = append(entries, s.entry(i, s.doctor, audit.StatusAllowed))
	}
	s.Require().NoError(s.st.Put(ctx, entries))

	got, err := s.st.ListByPatient(ctx, s.patient, audit.LogFilter{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(int64(3), got[0].BlockID)
	s.Equal(int64(2), got[1].BlockID)
	s.Equal("dr. Sari", got[0].DoctorName)
	s.Equal("Chrome on Linux", got[0].Device)
	s.True(entries[3].Timestamp.Equal(got[0].Timestamp))
}

func (s *contractSuite) TestPutIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.st.Put(ctx, []*audit.AccessLogEntry{s.entry(0, s.doctor, audit.StatusDenied)}))
	s.Require().NoError(s.st.Put(ctx, []*audit.AccessLogEntry{s.entry(0, s.doctor, audit.StatusDenied)}))

	got, err := s.st.ListByPatient(ctx, s.patient, audit.LogFilter{})
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *contractSuite) TestListByActor() {
	ctx := context.Background()
	s.Require().NoError(s.st.Put(ctx, []*audit.AccessLogEntry{
		s.entry(0, s.doctor, audit.StatusAllowed),
		s.entry(1, s.patient, audit.StatusAllowed),
	}))

	got, err := s.st.ListByActor(ctx, s.patient, audit.LogFilter{})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(int64(1), got[0].BlockID)

	none, err := s.st.ListByActor(ctx, id.UserID(uuid.New()), audit.LogFilter{})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *contractSuite) TestReset() {
	ctx := context.Background()
	s.Require().NoError(s.st.Put(ctx, []*audit.AccessLogEntry{s.entry(0, s.doctor, audit.StatusAllowed)}))
	s.Require().NoError(s.st.Reset(ctx))

	got, err := s.st.ListByPatient(ctx, s.patient, audit.LogFilter{})
	s.Require().NoError(err)
	s.Empty(got)
}

type MemoryProjectionSuite struct {
	contractSuite
}

func TestMemoryProjectionSuite(t *testing.T) {
	s := new(MemoryProjectionSuite)
	s.newStore = func() audit.Projection { return store.NewInMemory() }
	suite.Run(t, s)
}
