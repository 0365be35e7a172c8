//go:build integration

package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rekamed/internal/audit"
	auditstore "rekamed/internal/audit/store"
	"rekamed/internal/consent/models"
	"rekamed/internal/consent/service"
	"rekamed/internal/consent/store"
	identityservice "rekamed/internal/identity/service"
	identitystore "rekamed/internal/identity/store"
	"rekamed/internal/ledger"
	ledgerstore "rekamed/internal/ledger/store"
	"rekamed/pkg/crypto/signature"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
	"rekamed/pkg/testutil"
	"rekamed/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	contractSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	s := new(PostgresStoreSuite)
	s.postgres = containers.GetManager().GetPostgres(t)
	s.newStore = func() store.Store {
		s.Require().NoError(s.postgres.TruncateTables(context.Background()))
		return store.NewPostgres(s.postgres.DB)
	}
	s.seedUsers = func(parties ...*testutil.Party) {
		for _, p := range parties {
			s.postgres.SaveUsers(context.Background(), s.T(), p.User)
		}
	}
	suite.Run(t, s)
}

// TestConcurrentDecisionsCommitOnce runs the full transition path against
// one database transaction per attempt.
func (s *PostgresStoreSuite) TestConcurrentDecisionsCommitOnce() {
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := s.postgres.DB

	chain := ledgerstore.NewPostgres(db)
	users := identityservice.New(identitystore.NewPostgres(db), logger)
	recorder := audit.NewRecorder(chain, auditstore.NewPostgres(db), logger, audit.WithNames(users))
	svc := service.New(store.NewPostgres(db), store.NewPostgresTxRunner(db, 5*time.Second),
		users, signature.NewVerifier(), recorder, logger)

	req, err := svc.Create(ctx, s.doctor.ID(), s.patient.ID(), "")
	s.Require().NoError(err)
	grantSig := s.patient.Sign(s.T(), models.Message(models.ActionGrant, req, "24h"))
	denySig := s.patient.Sign(s.T(), models.Message(models.ActionDeny, req, ""))

	res := testutil.RunConcurrent(12, func(i int) error {
		d := models.Decision{Action: models.ActionGrant, Duration: "24h", Signature: grantSig}
		if i%2 == 1 {
			d = models.Decision{Action: models.ActionDeny, Signature: denySig}
		}
		_, err := svc.Decide(ctx, s.patient.ID(), req.ID, d)
		return err
	})

	s.Equal(1, res.Successes)
	s.Equal(11, res.Count(dErrors.CodeInvalidState))

	report, err := ledger.Verify(ctx, chain, testutil.FixedNow)
	s.Require().NoError(err)
	s.True(report.OK)
	s.Equal(int64(2), report.Checked)

	log, err := recorder.ForPatient(ctx, s.patient.ID(), audit.LogFilter{})
	s.Require().NoError(err)
	s.Len(log, 2)
}
