package e2e

import (
	"github.com/cucumber/godog"

	"identrisk/e2e/steps/common"
	"identrisk/e2e/steps/fraud"
	"identrisk/e2e/steps/verification"
)

// RegisterSteps wires every step package to the shared context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	verification.RegisterSteps(ctx, tc)
	fraud.RegisterSteps(ctx, tc)
}
