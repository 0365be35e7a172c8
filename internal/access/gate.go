// Package access decides whether an actor may touch a patient's records and
// writes every decision to the audit ledger.
package access

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rekamed/internal/access/metrics"
	"rekamed/internal/audit"
	"rekamed/internal/consent/models"
	"rekamed/internal/ledger"
	"rekamed/internal/platform/tracer"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

//go:generate mockgen -source=gate.go -destination=mocks/mocks.go -package=mocks GrantReader,Recorder

// GrantReader finds the grant that currently lets doctor read patient.
type GrantReader interface {
	ActiveGrant(ctx context.Context, doctorID, patientID id.UserID, now time.Time) (*models.Request, error)
}

type Recorder interface {
	Record(ctx context.Context, ev audit.Event) (*ledger.Block, error)
}

// ReasonNoActiveConsent is recorded on denials for doctors without a live grant.
const ReasonNoActiveConsent = "no_active_consent"

// Attempt describes one access to a patient's data.
type Attempt struct {
	ActorID   id.UserID
	ActorRole id.Role
	PatientID id.UserID
	Action    string
	// Subject is a free-form label for what was touched, such as "records".
	Subject string
	// RecordID names the touched object in the ledger. A fresh id is used
	// when empty.
	RecordID string
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	// GrantID is set when a consent grant allowed the access.
	GrantID *id.RequestID
	Block   *ledger.Block
}

type Gate struct {
	grants   GrantReader
	recorder Recorder
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

type Option func(*Gate)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(g *Gate) { g.tracer = t }
}

func New(grants GrantReader, recorder Recorder, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{grants: grants, recorder: recorder, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	g.tracer = tracer.OrNoop(g.tracer)
	return g
}

// CanAccess reports whether doctor holds an unexpired grant from patient at
// the request time. It never writes.
func (g *Gate) CanAccess(ctx context.Context, doctorID, patientID id.UserID) (bool, error) {
	grant, err := g.grants.ActiveGrant(ctx, doctorID, patientID, requestcontext.Now(ctx))
	if err != nil {
		return false, err
	}
	return grant != nil, nil
}

// Authorize decides an attempt and records the outcome. A denial returns a
// PermissionDenied error after its audit block is written. An allowed
// access whose audit block cannot be written is refused.
func (g *Gate) Authorize(ctx context.Context, a Attempt) (*Decision, error) {
	ctx, span := g.tracer.Start(ctx, tracer.SpanGateAuthorize,
		attribute.String("action", a.Action),
		attribute.String("patient_id", a.PatientID.String()),
	)
	d, err := g.authorize(ctx, a)
	span.End(err)
	return d, err
}

func (g *Gate) authorize(ctx context.Context, a Attempt) (*Decision, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)

	d := &Decision{}
	reason := ""
	switch {
	case a.ActorID == a.PatientID:
		d.Allowed = true
	case a.ActorRole != "" && a.ActorRole != id.RoleDoctor:
		reason = "role_not_permitted"
	default:
		grant, err := g.grants.ActiveGrant(ctx, a.ActorID, a.PatientID, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check consent")
		}
		if grant != nil {
			d.Allowed = true
			d.GrantID = &grant.ID
		} else {
			reason = ReasonNoActiveConsent
		}
	}

	ev := audit.Event{
		Kind:      audit.KindAccessDenied,
		RecordID:  a.RecordID,
		ActorID:   a.ActorID,
		ActorRole: a.ActorRole,
		PatientID: a.PatientID,
		Action:    a.Action,
		Subject:   a.Subject,
		Reason:    reason,
		Timestamp: now,
	}
	if ev.RecordID == "" {
		ev.RecordID = id.NewRecordID().String()
	}
	if a.ActorID != a.PatientID {
		ev.DoctorID = a.ActorID
	}
	if d.Allowed {
		ev.Kind = audit.KindAccessAllowed
	}

	block, err := g.recorder.Record(ctx, ev)
	if err != nil {
		g.metrics.IncAuditFailure()
		g.logger.ErrorContext(ctx, "failed to record access decision",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", a.ActorID.String(),
			"patient_id", a.PatientID.String(),
			"allowed", d.Allowed,
			"error", err,
		)
		if d.Allowed {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "access could not be recorded")
		}
	}
	d.Block = block

	outcome := "allowed"
	if !d.Allowed {
		outcome = "denied"
	}
	g.metrics.ObserveDecision(a.Action, outcome, time.Since(start).Seconds())

	if !d.Allowed {
		g.logger.WarnContext(ctx, "access denied",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", a.ActorID.String(),
			"patient_id", a.PatientID.String(),
			"action", a.Action,
			"reason", reason,
		)
		return d, dErrors.New(dErrors.CodePermissionDenied, deniedMessage(reason))
	}
	return d, nil
}

func deniedMessage(reason string) string {
	if reason == ReasonNoActiveConsent {
		return "doctor has no active consent to access this patient's records"
	}
	return "only the patient or a consented doctor may access these records"
}
