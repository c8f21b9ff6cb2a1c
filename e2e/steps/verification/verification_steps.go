package verification

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cucumber/godog"
)

type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	ResponseField(path string) (any, error)
	Save(name, value string)
	Saved(name string) string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &verificationSteps{tc: tc}

	ctx.Step(`^I start a "([^"]*)" verification for user "([^"]*)"$`, s.start)
	ctx.Step(`^I submit a selfie for the verification$`, s.submitSelfie)
	ctx.Step(`^I submit the document "([^"]*)" as raw text$`, s.submitDocumentText)
	ctx.Step(`^I fetch the verification$`, s.fetch)
	ctx.Step(`^I fetch the latest verification for user "([^"]*)"$`, s.latest)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) start(_ context.Context, typ, userID string) error {
	if err := s.tc.POST("/verifications", map[string]string{"userId": userID, "verificationType": typ}); err != nil {
		return err
	}
	if id, err := s.tc.ResponseField("verificationId"); err == nil {
		s.tc.Save("verificationId", fmt.Sprint(id))
	}
	return nil
}

func (s *verificationSteps) submitSelfie(context.Context) error {
	img := base64.StdEncoding.EncodeToString([]byte("selfie"))
	return s.tc.POST("/verifications/"+s.tc.Saved("verificationId")+"/selfie", map[string]string{"imageBase64": img})
}

// submitDocumentText sends the literal text without base64 encoding.
func (s *verificationSteps) submitDocumentText(_ context.Context, text string) error {
	return s.tc.POST("/verifications/"+s.tc.Saved("verificationId")+"/document", map[string]string{"imageBase64": text})
}

func (s *verificationSteps) fetch(context.Context) error {
	return s.tc.GET("/verifications/" + s.tc.Saved("verificationId"))
}

func (s *verificationSteps) latest(_ context.Context, userID string) error {
	return s.tc.GET("/users/" + userID + "/verifications/latest")
}
