package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rekamed/internal/audit"
	"rekamed/internal/consent/metrics"
	"rekamed/internal/consent/models"
	"rekamed/internal/consent/store"
	identitymodels "rekamed/internal/identity/models"
	"rekamed/internal/ledger"
	"rekamed/internal/platform/tracer"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SignatureVerifier,AuditRecorder

// TxRunner runs fn in a transaction serialized on key.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, st store.Stores) error) error
}

type Users interface {
	Get(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
	VerificationKey(ctx context.Context, patientID id.UserID) (string, error)
	Names(ctx context.Context, ids ...id.UserID) (map[id.UserID]string, error)
}

type SignatureVerifier interface {
	Verify(publicKey string, message []byte, signature string) error
}

type AuditRecorder interface {
	Append(ctx context.Context, store ledger.Store, ev audit.Event) (*ledger.Block, error)
	Project(ctx context.Context, b *ledger.Block)
}

const defaultGrantDuration = "24h"

// Service owns the consent lifecycle: pending → granted | denied, and
// granted → revoked. Every committed transition carries its ledger block.
type Service struct {
	store           store.Store
	tx              TxRunner
	users           Users
	verifier        SignatureVerifier
	recorder        AuditRecorder
	metrics         *metrics.Metrics
	tracer          tracer.Tracer
	logger          *slog.Logger
	defaultDuration string
	maxDuration     time.Duration
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithDefaultDuration sets the grant length used when a grant names none.
func WithDefaultDuration(d string) Option {
	return func(s *Service) {
		if d != "" {
			s.defaultDuration = d
		}
	}
}

// WithMaxDuration caps grant length. With a cap set, permanent grants are refused.
func WithMaxDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxDuration = d
		}
	}
}

func New(st store.Store, tx TxRunner, users Users, verifier SignatureVerifier, recorder AuditRecorder, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:           st,
		tx:              tx,
		users:           users,
		verifier:        verifier,
		recorder:        recorder,
		logger:          logger,
		defaultDuration: defaultGrantDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = tracer.OrNoop(s.tracer)
	return s
}

// Create opens a pending request from doctor to patient.
func (s *Service) Create(ctx context.Context, doctorID, patientID id.UserID, dataScope string) (*models.Request, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanConsentCreate)
	req, err := s.create(ctx, doctorID, patientID, dataScope)
	span.End(err)
	return req, err
}

func (s *Service) create(ctx context.Context, doctorID, patientID id.UserID, dataScope string) (*models.Request, error) {
	if doctorID == patientID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot request consent from yourself")
	}
	patient, err := s.users.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != id.RolePatient {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent can only be requested from a patient")
	}
	if dataScope == "" {
		dataScope = models.DefaultDataScope
	}

	now := requestcontext.Now(ctx)
	req := &models.Request{
		ID:        id.NewRequestID(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Status:    models.StatusPending,
		DataScope: dataScope,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var block *ledger.Block
	err = s.tx.RunInTx(ctx, req.PairKey(), func(ctx context.Context, st store.Stores) error {
		existing, err := st.Consents.ListForPair(ctx, doctorID, patientID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent requests")
		}
		for _, r := range existing {
			if r.IsActive(now) {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("an active consent request already exists for this patient (status %s)", r.Status))
			}
		}
		if err := st.Consents.Create(ctx, req); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "an active consent request already exists for this patient")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent request")
		}
		block, err = s.recorder.Append(ctx, st.Ledger, audit.Event{
			Kind:      audit.KindConsentRequested,
			RecordID:  req.ID.String(),
			ActorID:   doctorID,
			ActorRole: id.RoleDoctor,
			PatientID: patientID,
			DoctorID:  doctorID,
			Action:    audit.ActionConsentRequest,
			Subject:   dataScope,
			NewStatus: string(models.StatusPending),
			Timestamp: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Project(ctx, block)
	s.metrics.IncCreated()
	s.logger.InfoContext(ctx, "consent requested",
		"request_id", requestcontext.RequestID(ctx),
		"consent_request_id", req.ID.String(),
		"block_id", block.BlockID,
	)
	return req, nil
}

// Challenge returns the exact message the patient must sign for action.
func (s *Service) Challenge(ctx context.Context, patientID id.UserID, requestID id.RequestID, action models.Action, duration string) (*models.Challenge, error) {
	if !action.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown action %q", action))
	}
	req, err := s.loadForPatient(ctx, patientID, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkState(req, action); err != nil {
		return nil, err
	}
	if action == models.ActionGrant {
		duration, _, err = s.grantDuration(duration)
		if err != nil {
			return nil, err
		}
	} else {
		duration = ""
	}
	return &models.Challenge{
		RequestID: req.ID.String(),
		Action:    action,
		Duration:  duration,
		Message:   string(models.Message(action, req, duration)),
	}, nil
}

// Decide applies a signed grant or deny to a pending request. A wrong state
// or a bad signature leaves the request untouched.
func (s *Service) Decide(ctx context.Context, patientID id.UserID, requestID id.RequestID, d models.Decision) (*models.Request, error) {
	if d.Action != models.ActionGrant && d.Action != models.ActionDeny {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision must be grant or deny")
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanConsentDecide, attribute.String("action", string(d.Action)))
	req, err := s.transition(ctx, patientID, requestID, d)
	span.End(err)
	return req, err
}

// Revoke withdraws a granted request. Only granted requests can be revoked.
func (s *Service) Revoke(ctx context.Context, patientID id.UserID, requestID id.RequestID, signature string) (*models.Request, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanConsentRevoke)
	req, err := s.transition(ctx, patientID, requestID, models.Decision{Action: models.ActionRevoke, Signature: signature})
	span.End(err)
	return req, err
}

func (s *Service) transition(ctx context.Context, patientID id.UserID, requestID id.RequestID, d models.Decision) (*models.Request, error) {
	start := time.Now()
	var (
		duration string
		length   time.Duration
		err      error
	)
	if d.Action == models.ActionGrant {
		duration, length, err = s.grantDuration(d.Duration)
		if err != nil {
			s.metrics.IncRejected(string(d.Action), string(dErrors.CodeOf(err)))
			return nil, err
		}
	}

	// The pair key is needed before the transaction; the row is re-read inside it.
	current, err := s.loadForPatient(ctx, patientID, requestID)
	if err != nil {
		return nil, err
	}

	var (
		next  *models.Request
		block *ledger.Block
	)
	err = s.tx.RunInTx(ctx, current.PairKey(), func(ctx context.Context, st store.Stores) error {
		req, err := st.Consents.FindByID(ctx, requestID)
		if err != nil {
			return s.storeError(err, "failed to load consent request")
		}
		if err := checkState(req, d.Action); err != nil {
			return err
		}
		key, err := s.users.VerificationKey(ctx, patientID)
		if err != nil {
			return err
		}
		if err := s.verifier.Verify(key, models.Message(d.Action, req, duration), d.Signature); err != nil {
			return dErrors.Recode(err, dErrors.CodeInvalidSignature,
				fmt.Sprintf("signature does not match the %s message for this request", d.Action))
		}

		now := requestcontext.Now(ctx)
		next = applyAction(req, d.Action, duration, length, now)
		if err := st.Consents.UpdateStatus(ctx, next, req.Status); err != nil {
			return s.storeError(err, "failed to update consent request")
		}
		block, err = s.recorder.Append(ctx, st.Ledger, transitionEvent(req, next, d.Action, now))
		return err
	})
	if err != nil {
		s.metrics.IncRejected(string(d.Action), string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.recorder.Project(ctx, block)
	s.metrics.ObserveTransition(string(d.Action), string(next.Status), time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "consent transition committed",
		"request_id", requestcontext.RequestID(ctx),
		"consent_request_id", next.ID.String(),
		"status", string(next.Status),
		"block_id", block.BlockID,
	)
	return next, nil
}

func (s *Service) grantDuration(raw string) (string, time.Duration, error) {
	if raw == "" {
		raw = s.defaultDuration
	}
	canonical, d, err := models.ParseDuration(raw)
	if err != nil {
		return "", 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
	}
	if s.maxDuration > 0 && (d == 0 || d > s.maxDuration) {
		return "", 0, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("grant duration may not exceed %s", s.maxDuration))
	}
	return canonical, d, nil
}

// checkState reports whether action may be applied to req's stored status.
func checkState(req *models.Request, action models.Action) error {
	want := models.StatusPending
	if action == models.ActionRevoke {
		want = models.StatusGranted
	}
	if req.Status == want {
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidState,
		fmt.Sprintf("cannot %s a consent request that is %s", action, req.Status))
}

func applyAction(req *models.Request, action models.Action, duration string, length time.Duration, now time.Time) *models.Request {
	next := *req
	next.UpdatedAt = now
	switch action {
	case models.ActionGrant:
		next.Status = models.StatusGranted
		next.Duration = duration
		next.ExpiresAt = nil
		if length > 0 {
			exp := now.Add(length)
			next.ExpiresAt = &exp
		}
	case models.ActionDeny:
		next.Status = models.StatusDenied
	case models.ActionRevoke:
		next.Status = models.StatusRevoked
	}
	return &next
}

func transitionEvent(prev, next *models.Request, action models.Action, now time.Time) audit.Event {
	ev := audit.Event{
		RecordID:  next.ID.String(),
		ActorID:   next.PatientID,
		ActorRole: id.RolePatient,
		PatientID: next.PatientID,
		DoctorID:  next.DoctorID,
		Subject:   next.DataScope,
		OldStatus: string(prev.Status),
		NewStatus: string(next.Status),
		ExpiresAt: next.ExpiresAt,
		Timestamp: now,
	}
	switch action {
	case models.ActionGrant:
		ev.Kind, ev.Action = audit.KindConsentGranted, audit.ActionConsentGrant
	case models.ActionDeny:
		ev.Kind, ev.Action = audit.KindConsentDenied, audit.ActionConsentDeny
	case models.ActionRevoke:
		ev.Kind, ev.Action = audit.KindConsentRevoked, audit.ActionConsentRevoke
	}
	return ev
}

// loadForPatient hides requests addressed to other patients.
func (s *Service) loadForPatient(ctx context.Context, patientID id.UserID, requestID id.RequestID) (*models.Request, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, s.storeError(err, "failed to load consent request")
	}
	if req.PatientID != patientID {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
	}
	return req, nil
}

func (s *Service) storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "consent request not found")
	case errors.Is(err, sentinel.ErrStateChanged):
		return dErrors.New(dErrors.CodeInvalidState, "consent request changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// Get returns a request to one of its two parties.
func (s *Service) Get(ctx context.Context, userID id.UserID, requestID id.RequestID) (*models.View, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, s.storeError(err, "failed to load consent request")
	}
	if req.PatientID != userID && req.DoctorID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent request not found")
	}
	views, err := s.views(ctx, []*models.Request{req})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListForUser lists requests addressed to a patient or opened by a doctor.
// status filters on the effective status, so "expired" and "granted" are
// told apart.
func (s *Service) ListForUser(ctx context.Context, userID id.UserID, role id.Role, status string) ([]*models.View, error) {
	filter := models.ListFilter{}
	switch {
	case status == "":
	case status == models.StatusExpired:
		filter.Status = models.StatusGranted
	case models.Status(status).IsValid():
		filter.Status = models.Status(status)
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown status filter %q", status))
	}

	start := time.Now()
	var (
		reqs []*models.Request
		err  error
	)
	switch role {
	case id.RolePatient:
		reqs, err = s.store.ListByPatient(ctx, userID, filter)
	case id.RoleDoctor:
		reqs, err = s.store.ListByDoctor(ctx, userID, filter)
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "unknown role")
	}
	s.metrics.ObserveStoreOperation("list", time.Since(start).Seconds())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consent requests")
	}

	if status != "" {
		now := requestcontext.Now(ctx)
		kept := reqs[:0]
		for _, r := range reqs {
			if r.EffectiveStatus(now) == status {
				kept = append(kept, r)
			}
		}
		reqs = kept
	}
	return s.views(ctx, reqs)
}

func (s *Service) views(ctx context.Context, reqs []*models.Request) ([]*models.View, error) {
	out := make([]*models.View, 0, len(reqs))
	if len(reqs) == 0 {
		return out, nil
	}
	ids := make([]id.UserID, 0, 2*len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.DoctorID, r.PatientID)
	}
	names, err := s.users.Names(ctx, ids...)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	for _, r := range reqs {
		out = append(out, &models.View{
			Request:         r,
			DoctorName:      names[r.DoctorID],
			PatientName:     names[r.PatientID],
			EffectiveStatus: r.EffectiveStatus(now),
		})
	}
	return out, nil
}

// ActiveGrant returns the unexpired grant from doctor to patient at now, or
// nil when there is none. It never writes.
func (s *Service) ActiveGrant(ctx context.Context, doctorID, patientID id.UserID, now time.Time) (*models.Request, error) {
	start := time.Now()
	reqs, err := s.store.ListForPair(ctx, doctorID, patientID)
	s.metrics.ObserveStoreOperation("active_grant", time.Since(start).Seconds())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent requests")
	}
	for _, r := range reqs {
		if r.Status == models.StatusGranted && !r.IsExpired(now) {
			return r, nil
		}
	}
	return nil, nil
}

// PairStatuses reports the effective status of the newest request from
// doctor to each patient. Patients without requests are absent.
func (s *Service) PairStatuses(ctx context.Context, doctorID id.UserID, patientIDs []id.UserID) (map[id.UserID]string, error) {
	latest, err := s.store.LatestForPairs(ctx, doctorID, patientIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent statuses")
	}
	now := requestcontext.Now(ctx)
	out := make(map[id.UserID]string, len(latest))
	for pid, r := range latest {
		out[pid] = r.EffectiveStatus(now)
	}
	return out, nil
}
