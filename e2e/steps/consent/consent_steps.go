//go:build e2e

package consent

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rekamed/pkg/crypto/signature"
	id "rekamed/pkg/domain"
)

// TestContext is what the consent steps need from the suite context.
type TestContext interface {
	As(name, method, path string, body any) error
	UserID(name string) (id.UserID, error)
	SigningKey(name string) (*ecdsa.PrivateKey, error)
	LastStatus() int
	LastBody() []byte
	Field(path string) (any, error)
	SetLastConsentRequestID(rid string)
	ConsentRequestID() string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	ctx.Step(`^"([^"]*)" requests access to "([^"]*)"$`, steps.requestAccess)
	ctx.Step(`^"([^"]*)" grants the request for "([^"]*)"$`, steps.grant)
	ctx.Step(`^"([^"]*)" grants the request with a signature from another key$`, steps.grantWithForeignKey)
	ctx.Step(`^"([^"]*)" denies the request$`, steps.deny)
	ctx.Step(`^"([^"]*)" revokes the request$`, steps.revoke)
	ctx.Step(`^the consent request should be "([^"]*)"$`, steps.requestShouldBe)

	ctx.Step(`^"([^"]*)" adds a record for "([^"]*)" with diagnosis "([^"]*)"$`, steps.addRecord)
	ctx.Step(`^"([^"]*)" lists the records of "([^"]*)"$`, steps.listRecords)
	ctx.Step(`^"([^"]*)" lists their own records$`, steps.listOwnRecords)

	ctx.Step(`^"([^"]*)" should see an access log entry with status "([^"]*)" by "([^"]*)"$`, steps.accessLogShows)
}

type consentSteps struct {
	tc TestContext
}

func (s *consentSteps) requestAccess(ctx context.Context, doctor, patient string) error {
	pid, err := s.tc.UserID(patient)
	if err != nil {
		return err
	}
	err = s.tc.As(doctor, http.MethodPost, "/consent/request", map[string]string{
		"patient_id": pid.String(),
		"data_scope": "full_history",
	})
	if err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusCreated {
		return fmt.Errorf("consent request: status %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	rid, err := s.tc.Field("request_id")
	if err != nil {
		return err
	}
	s.tc.SetLastConsentRequestID(fmt.Sprint(rid))
	return nil
}

// challenge fetches the exact text the server expects the patient to sign.
func (s *consentSteps) challenge(patient, action, duration string) (string, error) {
	path := fmt.Sprintf("/consent/challenge/%s?action=%s", s.tc.ConsentRequestID(), action)
	if duration != "" {
		path += "&duration=" + duration
	}
	if err := s.tc.As(patient, http.MethodGet, path, nil); err != nil {
		return "", err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return "", fmt.Errorf("challenge: status %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	msg, err := s.tc.Field("message")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(msg), nil
}

func (s *consentSteps) decide(patient, action, duration string, key *ecdsa.PrivateKey) error {
	msg, err := s.challenge(patient, action, duration)
	if err != nil {
		return err
	}
	if key == nil {
		if key, err = s.tc.SigningKey(patient); err != nil {
			return err
		}
	}
	sig, err := signature.Sign(key, msg)
	if err != nil {
		return err
	}
	body := map[string]string{"signature": sig}
	if duration != "" {
		body["duration"] = duration
	}
	return s.tc.As(patient, http.MethodPost, fmt.Sprintf("/consent/%s/%s", action, s.tc.ConsentRequestID()), body)
}

func (s *consentSteps) grant(ctx context.Context, patient, duration string) error {
	return s.decide(patient, "grant", duration, nil)
}

func (s *consentSteps) grantWithForeignKey(ctx context.Context, patient string) error {
	other, err := gethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	return s.decide(patient, "grant", "1h", other)
}

func (s *consentSteps) deny(ctx context.Context, patient string) error {
	return s.decide(patient, "deny", "", nil)
}

func (s *consentSteps) revoke(ctx context.Context, patient string) error {
	return s.decide(patient, "revoke", "", nil)
}

func (s *consentSteps) requestShouldBe(ctx context.Context, status string) error {
	got, err := s.tc.Field("request.status")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != status {
		return fmt.Errorf("expected consent status %s but got %v", status, got)
	}
	return nil
}

func (s *consentSteps) addRecord(ctx context.Context, doctor, patient, diagnosis string) error {
	pid, err := s.tc.UserID(patient)
	if err != nil {
		return err
	}
	return s.tc.As(doctor, http.MethodPost, "/records", map[string]string{
		"patient_id": pid.String(),
		"diagnosis":  diagnosis,
		"notes":      "e2e",
	})
}

func (s *consentSteps) listRecords(ctx context.Context, doctor, patient string) error {
	pid, err := s.tc.UserID(patient)
	if err != nil {
		return err
	}
	return s.tc.As(doctor, http.MethodGet, "/records/patient/"+pid.String(), nil)
}

func (s *consentSteps) listOwnRecords(ctx context.Context, patient string) error {
	return s.tc.As(patient, http.MethodGet, "/records", nil)
}

type accessLogRow struct {
	Status     string `json:"status"`
	DoctorName string `json:"doctor_name"`
}

// accessLogShows polls because the projection may be updated asynchronously.
func (s *consentSteps) accessLogShows(ctx context.Context, patient, status, doctor string) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := s.tc.As(patient, http.MethodGet, "/log-access", nil); err != nil {
			return err
		}
		if s.tc.LastStatus() != http.StatusOK {
			return fmt.Errorf("access log: status %d: %s", s.tc.LastStatus(), s.tc.LastBody())
		}
		var rows []accessLogRow
		if err := json.Unmarshal(s.tc.LastBody(), &rows); err != nil {
			return fmt.Errorf("decode access log: %w", err)
		}
		for _, r := range rows {
			if r.Status == status && r.DoctorName == doctor {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no %s entry by %s in access log: %s", status, doctor, s.tc.LastBody())
		}
		time.Sleep(200 * time.Millisecond)
	}
}
