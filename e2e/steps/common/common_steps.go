package common

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the subset of the shared context these steps use.
type TestContext interface {
	POSTRaw(path, body string) error
	GET(path string) error
	Status() int
	Body() []byte
	ResponseField(path string) (any, error)
	Save(name, value string)
	Expand(s string) string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &commonSteps{tc: tc}

	ctx.Step(`^the service is healthy$`, s.serviceHealthy)
	ctx.Step(`^I POST to "([^"]*)" with body:$`, s.postWithBody)
	ctx.Step(`^I GET "([^"]*)"$`, s.get)
	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, s.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be true$`, s.fieldShouldBeTrue)
	ctx.Step(`^the response field "([^"]*)" should be false$`, s.fieldShouldBeFalse)
	ctx.Step(`^the response field "([^"]*)" should be at least ([\d.]+)$`, s.fieldAtLeast)
	ctx.Step(`^the response field "([^"]*)" should have (\d+) items?$`, s.fieldLength)
	ctx.Step(`^the error should be "([^"]*)"$`, s.errorShouldBe)
	ctx.Step(`^I save the response field "([^"]*)" as "([^"]*)"$`, s.saveField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceHealthy(context.Context) error {
	if err := s.tc.GET("/healthz"); err != nil {
		return err
	}
	return s.statusShouldBe(context.Background(), 200)
}

func (s *commonSteps) postWithBody(_ context.Context, path string, body *godog.DocString) error {
	return s.tc.POSTRaw(path, s.tc.Expand(body.Content))
}

func (s *commonSteps) get(_ context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, string(s.tc.Body()))
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(_ context.Context, field, want string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != s.tc.Expand(want) {
		return fmt.Errorf("field %s: expected %q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeTrue(_ context.Context, field string) error {
	return s.fieldBool(field, true)
}

func (s *commonSteps) fieldShouldBeFalse(_ context.Context, field string) error {
	return s.fieldBool(field, false)
}

func (s *commonSteps) fieldBool(field string, want bool) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got, ok := v.(bool); !ok || got != want {
		return fmt.Errorf("field %s: expected %t, got %v", field, want, v)
	}
	return nil
}

func (s *commonSteps) fieldAtLeast(_ context.Context, field, min string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	got, ok := v.(float64)
	if !ok {
		return fmt.Errorf("field %s is not a number: %v", field, v)
	}
	bound, err := strconv.ParseFloat(min, 64)
	if err != nil {
		return err
	}
	if got < bound {
		return fmt.Errorf("field %s: expected at least %v, got %v", field, bound, got)
	}
	return nil
}

func (s *commonSteps) fieldLength(_ context.Context, field string, want int) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("field %s is not an array: %v", field, v)
	}
	if len(items) != want {
		return fmt.Errorf("field %s: expected %d items, got %d", field, want, len(items))
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldBe(ctx, "error", code)
}

func (s *commonSteps) saveField(_ context.Context, field, name string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	s.tc.Save(name, fmt.Sprint(v))
	return nil
}
