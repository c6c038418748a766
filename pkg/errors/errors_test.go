package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeEmptyInput,
			message:    "empty csv",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "context error",
			category:   CategoryContext,
			code:       CodeMissingTenant,
			message:    "missing tenant",
			cause:      nil,
			expectCode: 4,
		},
		{
			name:       "not found error",
			category:   CategoryNotFound,
			code:       CodeMissingEntity,
			message:    "no draft",
			cause:      nil,
			expectCode: 5,
		},
		{
			name:       "persistence error",
			category:   CategoryPersistence,
			code:       CodeWriteFailed,
			message:    "write failed",
			cause:      errors.New("disk I/O error"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if !strings.HasPrefix(err.Error(), tt.message) {
				t.Errorf("expected error string to start with %q, got %q", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a captured stack trace")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected nil when wrapping a nil error")
	}
}

func TestCategoryPredicates(t *testing.T) {
	persistence := PersistenceError(CodeWriteFailed, "save progress", errors.New("locked"))
	wrapped := fmt.Errorf("saving draft: %w", persistence)

	if !IsPersistence(wrapped) {
		t.Error("expected wrapped persistence error to be detected")
	}
	if !IsRetryable(wrapped) {
		t.Error("expected persistence errors to be retryable")
	}
	if IsValidation(wrapped) || IsContext(wrapped) || IsNotFound(wrapped) {
		t.Error("persistence error matched another category")
	}

	if !IsContext(ContextError("tenant")) {
		t.Error("expected context error")
	}
	if ContextError("tenant").Code != CodeMissingTenant {
		t.Error("expected missing tenant code for tenant field")
	}
	if ContextError("user").Code != CodeMissingIdentity {
		t.Error("expected missing identity code for user field")
	}
	if !IsNotFound(NotFoundError("session", "abc")) {
		t.Error("expected not found error")
	}
	if IsRetryable(NotFoundError("session", "abc")) {
		t.Error("not found errors must not be retryable")
	}
	if IsCategory(errors.New("plain"), CategoryInternal) {
		t.Error("plain errors carry no category")
	}
}

func TestValidationErrorContext(t *testing.T) {
	err := ValidationError(CodeInvalidAmount, "monto", "abc", nil)

	if err.Context["field"] != "monto" {
		t.Errorf("expected field context, got %v", err.Context["field"])
	}
	if err.Context["value"] != "abc" {
		t.Errorf("expected value context, got %v", err.Context["value"])
	}
	if err.Suggestion == "" {
		t.Error("expected a suggestion")
	}
	if !strings.Contains(Describe(err), "Suggestion:") {
		t.Error("expected Describe to include the suggestion")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := NotFoundError("session", "s-1")
	if got := WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "x"); got != original {
		t.Error("expected existing ReconcilerError to be returned unchanged")
	}

	plain := errors.New("boom")
	got := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if got.Cause != plain || got.Category != CategoryInternal {
		t.Errorf("unexpected wrap result: %+v", got)
	}
}

func TestRowIssueCollector(t *testing.T) {
	c := NewRowIssueCollector(2)
	c.Add(RowIssue{Line: 2, Column: "monto", Value: "0", Code: CodeInvalidAmount, Reason: "zero amount"})
	c.Add(RowIssue{Line: 3, Column: "fecha", Value: "??", Code: CodeInvalidDate, Reason: "unrecognized date"})
	c.Add(RowIssue{Line: 4, Column: "monto", Value: "", Code: CodeInvalidAmount, Reason: "empty amount"})

	if c.Total() != 3 {
		t.Errorf("expected total 3, got %d", c.Total())
	}
	if len(c.Issues()) != 2 {
		t.Errorf("expected 2 retained issues, got %d", len(c.Issues()))
	}
	if c.CountByCode()[CodeInvalidAmount] != 1 {
		t.Errorf("expected one retained amount issue, got %d", c.CountByCode()[CodeInvalidAmount])
	}

	out := c.Format()
	if !strings.Contains(out, "and 1 more") {
		t.Errorf("expected hidden issue count in output, got %q", out)
	}
	if NewRowIssueCollector(0).Format() != "" {
		t.Error("expected empty output for an empty collector")
	}
}
