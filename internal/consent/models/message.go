package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is what a patient signs for.
type Action string

const (
	ActionGrant  Action = "grant"
	ActionDeny   Action = "deny"
	ActionRevoke Action = "revoke"
)

func (a Action) IsValid() bool {
	return a == ActionGrant || a == ActionDeny || a == ActionRevoke
}

// MessagePrefix versions the signable message format.
const MessagePrefix = "rekamedchain/consent/v1"

const (
	DurationPermanent = "permanent"
	noDuration        = "-"
)

// Message is the exact text a patient signs. It names the action and both
// parties so a signature cannot be replayed for another action or request.
// duration is only meaningful for grants.
func Message(action Action, r *Request, duration string) []byte {
	if action != ActionGrant || duration == "" {
		duration = noDuration
	}
	return fmt.Appendf(nil, "%s\naction=%s\nrequest=%s\npatient=%s\ndoctor=%s\nduration=%s",
		MessagePrefix,
		action,
		r.ID.String(),
		r.PatientID.String(),
		r.DoctorID.String(),
		duration,
	)
}

// Challenge is returned to the patient client to sign.
type Challenge struct {
	RequestID string `json:"request_id"`
	Action    Action `json:"action"`
	Duration  string `json:"duration,omitempty"`
	Message   string `json:"message"`
}

// Decision is a patient's signed answer to a pending request.
type Decision struct {
	Action    Action
	Duration  string
	Signature string
}

// ParseDuration accepts "permanent", a Go duration ("24h", "90m") or a day
// count ("7d"). It returns the canonical spelling stored on the request and
// the grant length, zero for permanent.
func ParseDuration(s string) (string, time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == DurationPermanent {
		return DurationPermanent, 0, nil
	}
	var (
		d   time.Duration
		err error
	)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, perr := strconv.Atoi(days)
		if perr != nil {
			return "", 0, fmt.Errorf("invalid duration %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return "", 0, fmt.Errorf("invalid duration %q", s)
		}
	}
	if d <= 0 {
		return "", 0, fmt.Errorf("duration %q must be positive", s)
	}
	return s, d, nil
}
