package testutil

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	apperrors "finsight/internal/errors"
	"finsight/internal/models"
)

// AssertAppError checks that err is, or wraps, an *AppError with the
// expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertAppErrorMessage is AssertAppError plus a substring check on the
// client-facing message.
func AssertAppErrorMessage(t *testing.T, err error, expectedCode, fragment string) {
	t.Helper()

	AssertAppError(t, err, expectedCode)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && !strings.Contains(appErr.Message, fragment) {
		t.Errorf("expected message containing %q, got %q", fragment, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// DecodePayload unmarshals a stored record's JSON payload.
func DecodePayload(t *testing.T, r *models.PeriodRecord) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(r.Data, &out); err != nil {
		t.Fatalf("failed to decode record payload: %v", err)
	}
	return out
}
