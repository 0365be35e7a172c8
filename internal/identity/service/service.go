package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rekamed/internal/identity/models"
	"rekamed/internal/identity/store"
	"rekamed/internal/sentinel"
	"rekamed/pkg/crypto/signature"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
)

// Service is the read model over registered users. Other bounded contexts
// use it to resolve display names, roles and patient verification keys.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

// RequireRole loads a user and checks its role. A user of the wrong role is
// reported as not found so ids of other roles cannot be discovered.
func (s *Service) RequireRole(ctx context.Context, userID id.UserID, role id.Role) (*models.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s not found", role))
	}
	return u, nil
}

// VerificationKey returns a patient's registered signing key.
func (s *Service) VerificationKey(ctx context.Context, patientID id.UserID) (string, error) {
	u, err := s.RequireRole(ctx, patientID, id.RolePatient)
	if err != nil {
		return "", err
	}
	if u.PublicKey == "" {
		return "", dErrors.New(dErrors.CodeInvalidSignature, "patient has no registered verification key")
	}
	return u.PublicKey, nil
}

// Names resolves display names. Unknown ids are left out.
func (s *Service) Names(ctx context.Context, ids ...id.UserID) (map[id.UserID]string, error) {
	users, err := s.store.FindByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user names")
	}
	out := make(map[id.UserID]string, len(users))
	for uid, u := range users {
		out[uid] = u.Name
	}
	return out, nil
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit int) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.User{}, nil
	}
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	limit = min(limit, models.MaxSearchLimit)
	users, err := s.store.Search(ctx, models.SearchFilter{Query: query, Role: id.RolePatient, Limit: limit})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search users")
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// Register stores a user supplied by the upstream registration system or a
// seed file. The role and any verification key are validated first.
func (s *Service) Register(ctx context.Context, u *models.User) error {
	if u.ID.IsNil() || strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Email) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "id, name and email are required")
	}
	if !u.Role.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown role %q", u.Role))
	}
	if u.PublicKey != "" {
		if _, err := signature.ParseKey(u.PublicKey); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "public key is not a secp256k1 key or address")
		}
	}
	err := s.store.Save(ctx, u)
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID.String(), "role", string(u.Role))
	return nil
}

func dedupe(ids []id.UserID) []id.UserID {
	seen := make(map[id.UserID]struct{}, len(ids))
	out := make([]id.UserID, 0, len(ids))
	for _, uid := range ids {
		if uid.IsNil() {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	return out
}
