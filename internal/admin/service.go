package admin

import (
	"context"
	"log/slog"
	"time"

	"rekamed/internal/identity/models"
	"rekamed/internal/ledger"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

// ChainVerifier is the ledger service's strict verification.
type ChainVerifier interface {
	VerifyStrict(ctx context.Context, source string) (*ledger.Report, error)
}

// ProjectionRebuilder replays the ledger into the access-log projection.
type ProjectionRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
	ProjectionDegraded() bool
}

// UserRegistry enrolls doctors and patients.
type UserRegistry interface {
	Register(ctx context.Context, u *models.User) error
}

// Service backs the operator endpoints. Nothing here mutates the ledger.
type Service struct {
	chain    ledger.Reader
	verifier ChainVerifier
	rebuild  ProjectionRebuilder
	users    UserRegistry
	backend  string
	logger   *slog.Logger
}

func NewService(chain ledger.Reader, verifier ChainVerifier, rebuild ProjectionRebuilder, users UserRegistry, backend string, logger *slog.Logger) *Service {
	return &Service{chain: chain, verifier: verifier, rebuild: rebuild, users: users, backend: backend, logger: logger}
}

type Stats struct {
	LedgerBackend string     `json:"ledger_backend"`
	Blocks        int64      `json:"blocks"`
	HeadHash      string     `json:"head_hash,omitempty"`
	HeadCreatedAt *time.Time `json:"head_created_at,omitempty"`
	// ProjectionDegraded is true while access logs are read from the ledger.
	ProjectionDegraded bool `json:"projection_degraded"`
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	head, err := s.chain.Head(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger head")
	}
	st := &Stats{LedgerBackend: s.backend, ProjectionDegraded: s.rebuild.ProjectionDegraded()}
	if head != nil {
		st.Blocks = head.BlockID + 1
		st.HeadHash = ledger.ChainHash(head)
		st.HeadCreatedAt = &head.CreatedAt
	}
	return st, nil
}

// Verify runs a strict full-chain verification; a broken chain is an
// integrity_violation error carrying the report.
func (s *Service) Verify(ctx context.Context, actor string) (*ledger.Report, error) {
	source := "admin"
	if actor != "" {
		source = "admin:" + actor
	}
	return s.verifier.VerifyStrict(ctx, source)
}

type RebuildResult struct {
	Replayed   int       `json:"replayed"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Service) RebuildAccessLog(ctx context.Context, actor string) (*RebuildResult, error) {
	n, err := s.rebuild.Rebuild(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebuild access log")
	}
	s.logger.InfoContext(ctx, "access log rebuilt from ledger",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor,
		"replayed", n,
	)
	return &RebuildResult{Replayed: n, FinishedAt: requestcontext.Now(ctx)}, nil
}

// RegisterUser enrolls u on behalf of an operator. Accounts normally arrive
// from the upstream login service; this covers onboarding and test setups.
func (s *Service) RegisterUser(ctx context.Context, u *models.User, actor string) (*models.Profile, error) {
	now := requestcontext.Now(ctx)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if err := s.users.Register(ctx, u); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user enrolled by operator",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor,
		"user_id", u.ID.String(),
		"role", string(u.Role),
	)
	return models.NewProfile(u, now), nil
}
