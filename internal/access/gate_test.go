package access_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rekamed/internal/access"
	"rekamed/internal/access/metrics"
	"rekamed/internal/access/mocks"
	"rekamed/internal/audit"
	auditstore "rekamed/internal/audit/store"
	"rekamed/internal/consent/models"
	consentservice "rekamed/internal/consent/service"
	consentstore "rekamed/internal/consent/store"
	identityservice "rekamed/internal/identity/service"
	identitystore "rekamed/internal/identity/store"
	"rekamed/internal/ledger"
	ledgerstore "rekamed/internal/ledger/store"
	"rekamed/pkg/crypto/signature"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/txjournal"
	"rekamed/pkg/requestcontext"
	"rekamed/pkg/testutil"
)

type GateSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	grants   *mocks.MockGrantReader
	recorder *mocks.MockRecorder
	metrics  *metrics.Metrics
	gate     *access.Gate
	ctx      context.Context
	doctor   id.UserID
	patient  id.UserID
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.grants = mocks.NewMockGrantReader(s.ctrl)
	s.recorder = mocks.NewMockRecorder(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.gate = access.New(s.grants, s.recorder, slog.New(slog.NewTextHandler(io.Discard, nil)),
		access.WithMetrics(s.metrics))
	s.ctx = requestcontext.WithTime(context.Background(), testutil.FixedNow)
	s.doctor = id.UserID(uuid.New())
	s.patient = id.UserID(uuid.New())
}

func (s *GateSuite) attempt() access.Attempt {
	return access.Attempt{
		ActorID:   s.doctor,
		ActorRole: id.RoleDoctor,
		PatientID: s.patient,
		Action:    audit.ActionRecordsRead,
		Subject:   "records",
	}
}

func (s *GateSuite) TestPatientIsAlwaysAllowed() {
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev audit.Event) (*ledger.Block, error) {
			s.Equal(audit.KindAccessAllowed, ev.Kind)
			s.True(ev.DoctorID.IsNil())
			return &ledger.Block{BlockID: 4}, nil
		})

	d, err := s.gate.Authorize(s.ctx, access.Attempt{
		ActorID: s.patient, ActorRole: id.RolePatient, PatientID: s.patient, Action: audit.ActionRecordsRead,
	})
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Nil(d.GrantID)
	s.Equal(int64(4), d.Block.BlockID)
}

func (s *GateSuite) TestGrantedDoctorIsAllowed() {
	grant := &models.Request{ID: id.NewRequestID(), Status: models.StatusGranted}
	s.grants.EXPECT().ActiveGrant(gomock.Any(), s.doctor, s.patient, testutil.FixedNow).Return(grant, nil)
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev audit.Event) (*ledger.Block, error) {
			s.Equal(audit.KindAccessAllowed, ev.Kind)
			s.Equal(s.doctor, ev.DoctorID)
			s.NotEmpty(ev.RecordID)
			return &ledger.Block{BlockID: 1}, nil
		})

	d, err := s.gate.Authorize(s.ctx, s.attempt())
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(grant.ID, *d.GrantID)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Decisions.WithLabelValues(audit.ActionRecordsRead, "allowed")))
}

func (s *GateSuite) TestDoctorWithoutGrantIsDeniedAndRecorded() {
	s.grants.EXPECT().ActiveGrant(gomock.Any(), s.doctor, s.patient, testutil.FixedNow).Return(nil, nil)
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev audit.Event) (*ledger.Block, error) {
			s.Equal(audit.KindAccessDenied, ev.Kind)
			s.Equal(access.ReasonNoActiveConsent, ev.Reason)
			return &ledger.Block{BlockID: 2}, nil
		})

	d, err := s.gate.Authorize(s.ctx, s.attempt())
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	s.Contains(err.Error(), "no active consent")
	s.Require().NotNil(d)
	s.False(d.Allowed)
	s.Equal(int64(2), d.Block.BlockID)
}

func (s *GateSuite) TestNonDoctorIsDeniedWithoutGrantLookup() {
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(&ledger.Block{}, nil)

	a := s.attempt()
	a.ActorRole = id.RolePatient
	_, err := s.gate.Authorize(s.ctx, a)
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func (s *GateSuite) TestAuditFailureRefusesAllowedAccess() {
	s.grants.EXPECT().ActiveGrant(gomock.Any(), s.doctor, s.patient, testutil.FixedNow).
		Return(&models.Request{ID: id.NewRequestID()}, nil)
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil, errors.New("ledger down"))

	_, err := s.gate.Authorize(s.ctx, s.attempt())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.AuditFailures))
}

func (s *GateSuite) TestAuditFailureStillDenies() {
	s.grants.EXPECT().ActiveGrant(gomock.Any(), s.doctor, s.patient, testutil.FixedNow).Return(nil, nil)
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil, errors.New("ledger down"))

	_, err := s.gate.Authorize(s.ctx, s.attempt())
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func (s *GateSuite) TestGrantLookupFailureIsInternal() {
	s.grants.EXPECT().ActiveGrant(gomock.Any(), s.doctor, s.patient, testutil.FixedNow).Return(nil, errors.New("db"))

	_, err := s.gate.Authorize(s.ctx, s.attempt())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *GateSuite) TestCanAccessNeverRecords() {
	s.grants.EXPECT().ActiveGrant(gomock.Any(), s.doctor, s.patient, testutil.FixedNow).Return(nil, nil)

	ok, err := s.gate.CanAccess(s.ctx, s.doctor, s.patient)
	s.Require().NoError(err)
	s.False(ok)
}

// TestGateWithConsentLifecycle wires the gate to a real consent service and
// audit recorder.
func TestGateWithConsentLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedNow)

	userStore := identitystore.NewInMemory()
	doctor := testutil.NewDoctor("dr. Sari")
	stranger := testutil.NewDoctor("dr. Anton")
	patient := testutil.NewPatient(t, "Budi")
	for _, p := range []*testutil.Party{doctor, stranger, patient} {
		require.NoError(t, userStore.Save(ctx, p.User))
	}
	users := identityservice.New(userStore, logger)

	chain := ledgerstore.NewInMemory()
	projection := auditstore.NewInMemory()
	recorder := audit.NewRecorder(chain, projection, logger, audit.WithNames(users))
	consents := consentstore.NewInMemory()
	svc := consentservice.New(consents,
		consentstore.NewMemoryTx(txjournal.NewRunner(time.Second), consents, chain),
		users, signature.NewVerifier(), recorder, logger)
	gate := access.New(svc, recorder, logger)

	req, err := svc.Create(ctx, doctor.ID(), patient.ID(), "")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, patient.ID(), req.ID, models.Decision{
		Action:    models.ActionGrant,
		Duration:  "24h",
		Signature: patient.Sign(t, models.Message(models.ActionGrant, req, "24h")),
	})
	require.NoError(t, err)

	read := func(ctx context.Context, actor *testutil.Party) error {
		_, err := gate.Authorize(ctx, access.Attempt{
			ActorID: actor.ID(), ActorRole: id.RoleDoctor, PatientID: patient.ID(), Action: audit.ActionRecordsRead,
		})
		return err
	}

	assert.NoError(t, read(ctx, doctor))
	assert.True(t, dErrors.HasCode(read(ctx, stranger), dErrors.CodePermissionDenied))
	expired := requestcontext.WithTime(context.Background(), testutil.FixedNow.Add(25*time.Hour))
	assert.True(t, dErrors.HasCode(read(expired, doctor), dErrors.CodePermissionDenied))

	blocks, err := chain.List(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, blocks, 5)
	assert.Equal(t, string(audit.KindAccessAllowed), blocks[2].Kind)
	assert.Equal(t, string(audit.KindAccessDenied), blocks[3].Kind)
	assert.Equal(t, string(audit.KindAccessDenied), blocks[4].Kind)

	report, err := ledger.Verify(ctx, chain, testutil.FixedNow)
	require.NoError(t, err)
	assert.True(t, report.OK)

	log, err := recorder.ForPatient(ctx, patient.ID(), audit.LogFilter{})
	require.NoError(t, err)
	require.Len(t, log, 5)
	assert.Equal(t, audit.StatusDenied, log[0].Status)
	assert.Equal(t, "dr. Sari", log[0].DoctorName)
}

func TestPatientSelfReadReachesAccessLog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedNow)

	userStore := identitystore.NewInMemory()
	patient := testutil.NewPatient(t, "Budi")
	require.NoError(t, userStore.Save(ctx, patient.User))
	users := identityservice.New(userStore, logger)

	chain := ledgerstore.NewInMemory()
	recorder := audit.NewRecorder(chain, auditstore.NewInMemory(), logger, audit.WithNames(users))
	consents := consentstore.NewInMemory()
	svc := consentservice.New(consents,
		consentstore.NewMemoryTx(txjournal.NewRunner(time.Second), consents, chain),
		users, signature.NewVerifier(), recorder, logger)
	gate := access.New(svc, recorder, logger)

	d, err := gate.Authorize(ctx, access.Attempt{
		ActorID: patient.ID(), ActorRole: id.RolePatient, PatientID: patient.ID(), Action: audit.ActionRecordsRead,
	})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	head, err := chain.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	ev, err := audit.DecodeEvent(head)
	require.NoError(t, err)
	assert.True(t, ev.DoctorID.IsNil())
	assert.NotContains(t, string(head.Payload), "doctor_id")

	assertSelfRead := func() {
		t.Helper()
		log, err := recorder.ForPatient(ctx, patient.ID(), audit.LogFilter{})
		require.NoError(t, err)
		require.Len(t, log, 1)
		assert.Equal(t, audit.StatusAllowed, log[0].Status)
		assert.Equal(t, patient.ID(), log[0].ActorID)
		assert.Equal(t, "Budi", log[0].DoctorName)
	}
	assertSelfRead()

	n, err := recorder.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertSelfRead()
}
