package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// ============================================================================
// 1. Error creation with different codes/categories
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         ErrorCode
		message      string
		wantCategory ErrorCategory
	}{
		{"timeout", ErrCodeTimeout, "operation timed out", CategoryTransient},
		{"unavailable", ErrCodeUnavailable, "store down", CategoryTransient},
		{"invalid_input", ErrCodeInvalidInput, `"name" is required`, CategoryPermanent},
		{"unauthorized", ErrCodeUnauthorized, "Invalid proof", CategoryPermanent},
		{"not_found", ErrCodeNotFound, "agent not found", CategoryPermanent},
		{"internal", ErrCodeInternal, "internal error", CategoryInternal},
		{"panic", ErrCodePanic, "boom", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Error() != tt.message {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.message)
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should not be zero")
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeNotFound, "agent %s not found", "agent-7")
	want := "agent agent-7 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(ErrCodeUnauthorized)
	if err.Code() != ErrCodeUnauthorized {
		t.Errorf("Code() = %v, want %v", err.Code(), ErrCodeUnauthorized)
	}
	if err.Error() != "invalid proof" {
		t.Errorf("Error() = %v, want %v", err.Error(), "invalid proof")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		code ErrorCode
	}{
		{InvalidInput("bad"), ErrCodeInvalidInput},
		{Unauthorized("bad"), ErrCodeUnauthorized},
		{NotFound("gone"), ErrCodeNotFound},
		{Unavailable("down"), ErrCodeUnavailable},
		{Internal("oops"), ErrCodeInternal},
	}
	for _, tt := range tests {
		if tt.err.Code() != tt.code {
			t.Errorf("Code() = %v, want %v", tt.err.Code(), tt.code)
		}
	}
}

// ============================================================================
// 2. Retryable vs non-retryable errors
// ============================================================================

func TestRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeUnavailable, true},
		{ErrCodeInvalidInput, false},
		{ErrCodeUnauthorized, false},
		{ErrCodeNotFound, false},
		{ErrCodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
			if got := tt.code.DefaultRetryable(); got != tt.want {
				t.Errorf("DefaultRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(ErrCodeUnavailable, "down", WithRetryable(false))
	if err.Retryable() {
		t.Error("explicit override should win over category default")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

// ============================================================================
// 3. Options and metadata
// ============================================================================

func TestOptions(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InvalidInput(`"name" is required`,
		WithField("name"),
		WithAgentID("agent-1"),
		WithCause(cause),
		WithCategory(CategoryInternal),
	)

	if err.Metadata()["field"] != "name" {
		t.Errorf("field metadata = %q", err.Metadata()["field"])
	}
	if err.AgentID() != "agent-1" {
		t.Errorf("AgentID() = %q", err.AgentID())
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be in the chain")
	}
	if err.Category() != CategoryInternal {
		t.Errorf("Category() = %v", err.Category())
	}
	if err.Message() != `"name" is required` {
		t.Errorf("Message() = %q", err.Message())
	}
	if err.Error() != `"name" is required: root cause` {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestMetadataIsCopy(t *testing.T) {
	err := New(ErrCodeInvalidInput, "x", WithMetadata("k", "v"))
	md := err.Metadata()
	md["k"] = "changed"
	if err.Metadata()["k"] != "v" {
		t.Error("Metadata() should return a copy")
	}
}

// ============================================================================
// 4. Wrapping and chain inspection
// ============================================================================

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if WrapWithCode(nil, ErrCodeUnavailable, "x") != nil {
		t.Error("WrapWithCode(nil) should be nil")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := NotFound("agent missing", WithField("agent_id"))
	outer := Wrap(inner, "deregister")

	if outer.Code() != ErrCodeNotFound {
		t.Errorf("Code() = %v, want %v", outer.Code(), ErrCodeNotFound)
	}
	if outer.Metadata()["field"] != "agent_id" {
		t.Error("metadata should carry through Wrap")
	}
	if !errors.Is(outer, inner) {
		t.Error("inner should be in the chain")
	}
}

func TestWrapContextErrors(t *testing.T) {
	if got := Wrap(context.DeadlineExceeded, "x").Code(); got != ErrCodeTimeout {
		t.Errorf("deadline Code() = %v", got)
	}
	if got := Wrap(context.Canceled, "x").Code(); got != ErrCodeCanceled {
		t.Errorf("canceled Code() = %v", got)
	}
	if got := Wrap(fmt.Errorf("disk"), "x").Code(); got != ErrCodeInternal {
		t.Errorf("plain Code() = %v", got)
	}
}

func TestWrapWithCode(t *testing.T) {
	cause := fmt.Errorf("kv put: connection closed")
	err := WrapWithCode(cause, ErrCodeUnavailable, "persist agent")
	if !IsTransient(err) {
		t.Error("UNAVAILABLE should be transient")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be in the chain")
	}
}

func TestIsAndCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", Unauthorized("Invalid proof"))
	if !Is(err, ErrCodeUnauthorized) {
		t.Error("Is() should find UNAUTHORIZED through fmt wrapping")
	}
	if Code(err) != ErrCodeUnauthorized {
		t.Errorf("Code() = %v", Code(err))
	}
	if Code(fmt.Errorf("plain")) != "" {
		t.Error("Code() of plain error should be empty")
	}
	if GetMetadata(fmt.Errorf("plain")) != nil {
		t.Error("GetMetadata() of plain error should be nil")
	}
}

// ============================================================================
// 5. HTTP mapping
// ============================================================================

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid", InvalidInput("x"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized},
		{"not_found", NotFound("x"), http.StatusNotFound},
		{"conflict", New(ErrCodeConflict, "x"), http.StatusConflict},
		{"unavailable", Unavailable("x"), http.StatusInternalServerError},
		{"timeout", FromCode(ErrCodeTimeout), http.StatusGatewayTimeout},
		{"rate_limited", RateLimited("x"), http.StatusTooManyRequests},
		{"plain", fmt.Errorf("x"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("a: %w", NotFound("x")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	err := WrapWithCode(fmt.Errorf("secret dsn"), ErrCodeUnavailable, "failed to persist agent")
	if got := PublicMessage(err); got != "failed to persist agent" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(fmt.Errorf("secret")); got != "internal error" {
		t.Errorf("PublicMessage(plain) = %q", got)
	}
}

// ============================================================================
// 6. JSON encoding and panic recovery
// ============================================================================

func TestMarshalJSON(t *testing.T) {
	orig := InvalidInput("bad field", WithField("name"), WithAgentID("a1"), WithCause(fmt.Errorf("root")))
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["code"] != "INVALID_INPUT" || got["category"] != "permanent" || got["agent_id"] != "a1" {
		t.Errorf("json = %s", data)
	}
	if got["cause"] != "root" || got["retryable"] != false {
		t.Errorf("json = %s", data)
	}
	if md, ok := got["metadata"].(map[string]interface{}); !ok || md["field"] != "name" {
		t.Errorf("metadata = %v", got["metadata"])
	}
	if _, ok := got["timestamp"].(string); !ok {
		t.Error("timestamp missing")
	}
}

func TestRecoverPanic(t *testing.T) {
	if RecoverPanic(nil) != nil {
		t.Error("RecoverPanic(nil) should be nil")
	}
	tests := []struct {
		value interface{}
		msg   string
	}{
		{"boom", "boom"},
		{fmt.Errorf("err boom"), "err boom"},
		{42, "42"},
	}
	for _, tt := range tests {
		err := RecoverPanic(tt.value)
		if err.Code() != ErrCodePanic {
			t.Errorf("Code() = %v", err.Code())
		}
		if err.Error() != tt.msg {
			t.Errorf("Error() = %q, want %q", err.Error(), tt.msg)
		}
	}
}
