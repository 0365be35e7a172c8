//go:build e2e

package e2e

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"

	"rekamed/e2e/steps/admin"
	"rekamed/e2e/steps/common"
	"rekamed/e2e/steps/consent"
)

var opts = godog.Options{
	Output: colors.Colored(os.Stdout),
	Format: "pretty",
	Paths:  []string{"features"},
	Strict: true,
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

// TestFeatures drives a running server at BASE_URL. The server must share
// JWT_SIGNING_KEY and ADMIN_API_TOKEN with this process.
func TestFeatures(t *testing.T) {
	flag.Parse()
	opts.TestingT = t

	status := godog.TestSuite{
		Name: "rekamed",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			initializeScenario(t, sc)
		},
		Options: &opts,
	}.Run()
	if status != 0 {
		t.Fatalf("feature run exited with status %d", status)
	}
}

func initializeScenario(t *testing.T, sc *godog.ScenarioContext) {
	tc := NewTestContext()

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*tc = *NewTestContext()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if err != nil {
			t.Logf("scenario %q failed; last response %d: %s", s.Name, tc.LastStatus(), tc.LastBody())
		}
		return ctx, nil
	})

	common.RegisterSteps(sc, tc)
	admin.RegisterSteps(sc, tc)
	consent.RegisterSteps(sc, tc)
}
