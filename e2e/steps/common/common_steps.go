//go:build e2e

package common

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is what the common steps need from the suite context.
type TestContext interface {
	Do(method, path string, body any, headers map[string]string) error
	LastStatus() int
	LastBody() []byte
	Field(path string) (any, error)
}

// RegisterSteps registers steps shared across features.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the RekamedChain API is running$`, steps.apiIsRunning)
	ctx.Step(`^I GET "([^"]*)" without authorization$`, steps.getWithoutAuth)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseShouldNotContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) apiIsRunning(ctx context.Context) error {
	if err := s.tc.Do(http.MethodGet, "/health/live", nil, nil); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return fmt.Errorf("server not live: status %d", s.tc.LastStatus())
	}
	return nil
}

func (s *commonSteps) getWithoutAuth(ctx context.Context, path string) error {
	return s.tc.Do(http.MethodGet, path, nil, nil)
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.LastStatus(); got != expected {
		return fmt.Errorf("expected status %d but got %d: %s", expected, got, s.tc.LastBody())
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, text string) error {
	if !strings.Contains(string(s.tc.LastBody()), text) {
		return fmt.Errorf("response does not contain %q\nResponse: %s", text, s.tc.LastBody())
	}
	return nil
}

func (s *commonSteps) responseShouldNotContain(ctx context.Context, text string) error {
	if strings.Contains(string(s.tc.LastBody()), text) {
		return fmt.Errorf("response unexpectedly contains %q", text)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldEqual(ctx context.Context, field, expected string) error {
	v, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(v) != expected {
		return fmt.Errorf("field %s: expected %s but got %v", field, expected, v)
	}
	return nil
}
