// Package registry cross-checks a NIK against the civil registry.
//
// Verify never returns an error: every failure to consult the registry becomes a
// result with status ERROR and the cause in Notes, which the orchestrator treats
// as not verified.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"identrisk/internal/verification/models"
)

// Verifier is the registry port used by the orchestrator.
type Verifier interface {
	Verify(ctx context.Context, nik string) models.RegistryResult
}

var nikPattern = regexp.MustCompile(`^\d{16}$`)

// ValidFormat reports whether nik is 16 digits.
func ValidFormat(nik string) bool {
	return nikPattern.MatchString(nik)
}

// FailureCategory normalises why the registry could not be consulted.
type FailureCategory string

const (
	FailureTimeout     FailureCategory = "timeout"
	FailureOutage      FailureCategory = "provider_outage"
	FailureBadData     FailureCategory = "bad_data"
	FailureRateLimited FailureCategory = "rate_limited"
	FailureCircuitOpen FailureCategory = "circuit_open"
	FailureInternal    FailureCategory = "internal"
)

// Failure is a categorised lookup failure.
type Failure struct {
	Category FailureCategory
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("registry %s: %v", f.Category, f.Err)
	}
	return "registry " + string(f.Category)
}

func (f *Failure) Unwrap() error { return f.Err }

// categorize maps transport errors onto the failure taxonomy.
func categorize(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		return &Failure{Category: FailureTimeout, Err: err}
	}
	return &Failure{Category: FailureOutage, Err: err}
}

// ErrorResult converts a failure into the ERROR result.
func ErrorResult(nik string, err error, now time.Time) models.RegistryResult {
	return models.RegistryResult{
		IDNumber:  nik,
		IsValid:   false,
		Status:    models.RegistryError,
		Notes:     categorize(err).Error(),
		CheckedAt: now,
	}
}

// InvalidFormatResult is returned without calling the registry.
func InvalidFormatResult(nik string, now time.Time) models.RegistryResult {
	return models.RegistryResult{
		IDNumber:  nik,
		IsValid:   false,
		Status:    models.RegistryInvalidFormat,
		Notes:     "NIK must be 16 digits",
		CheckedAt: now,
	}
}

// Minimize strips personal attributes the pipeline does not need to retain.
func Minimize(r models.RegistryResult) models.RegistryResult {
	r.Name = ""
	r.BirthDate = ""
	return r
}
