//go:build e2e

package admin

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rekamed/pkg/crypto/signature"
	id "rekamed/pkg/domain"
)

// TestContext is what the admin steps need from the suite context.
type TestContext interface {
	AsAdmin(method, path string, body any) error
	Enroll(name string, uid id.UserID, role id.Role, key *ecdsa.PrivateKey) error
	LastStatus() int
	LastBody() []byte
	Field(path string) (any, error)
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^a doctor "([^"]*)" is enrolled$`, steps.enrollDoctor)
	ctx.Step(`^a patient "([^"]*)" is enrolled with a signing key$`, steps.enrollPatient)
	ctx.Step(`^the operator verifies the ledger$`, steps.verifyLedger)
	ctx.Step(`^the ledger should be intact$`, steps.ledgerShouldBeIntact)
}

type adminSteps struct {
	tc TestContext
}

func (s *adminSteps) enroll(name string, role id.Role, key *ecdsa.PrivateKey) error {
	body := map[string]any{
		"name":  name,
		"email": uniqueEmail(name),
		"role":  string(role),
	}
	if key != nil {
		body["public_key"] = signature.PublicKeyHex(key)
	}
	if err := s.tc.AsAdmin(http.MethodPost, "/admin/users", body); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusCreated {
		return fmt.Errorf("enroll %s: status %d: %s", name, s.tc.LastStatus(), s.tc.LastBody())
	}
	raw, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	uid, err := id.ParseUserID(fmt.Sprint(raw))
	if err != nil {
		return err
	}
	return s.tc.Enroll(name, uid, role, key)
}

func (s *adminSteps) enrollDoctor(ctx context.Context, name string) error {
	return s.enroll(name, id.RoleDoctor, nil)
}

func (s *adminSteps) enrollPatient(ctx context.Context, name string) error {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	return s.enroll(name, id.RolePatient, key)
}

func (s *adminSteps) verifyLedger(ctx context.Context) error {
	return s.tc.AsAdmin(http.MethodPost, "/admin/ledger/verify", nil)
}

func (s *adminSteps) ledgerShouldBeIntact(ctx context.Context) error {
	if s.tc.LastStatus() != http.StatusOK {
		return fmt.Errorf("ledger verification: status %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	ok, err := s.tc.Field("report.ok")
	if err != nil {
		return err
	}
	if ok != true {
		return fmt.Errorf("ledger report not ok: %s", s.tc.LastBody())
	}
	return nil
}
