package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name: "basic error",
			appError: &AppError{
				Type:    ErrTypeConfig,
				Message: "policy is invalid",
			},
			want: "config: policy is invalid",
		},
		{
			name: "error with code",
			appError: &AppError{
				Type:    ErrTypeValidation,
				Message: "limit must be positive",
				Code:    "RL001",
			},
			want: "validation: limit must be positive: code=RL001",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeStore,
				Message: "store set failed",
				Cause:   errors.New("connection refused"),
			},
			want: "store: store set failed: cause=connection refused",
		},
		{
			name: "error with context is sorted by key",
			appError: &AppError{
				Type:    ErrTypeNotFound,
				Message: "policy not found",
				Context: map[string]interface{}{
					"policy":     "auth.login",
					"identifier": "10.0.0.1",
				},
			},
			want: "not_found: policy not found: context={identifier=10.0.0.1, policy=auth.login}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	appError := StoreError("get", cause)

	if appError.Unwrap() != cause {
		t.Errorf("AppError.Unwrap() = %v, want %v", appError.Unwrap(), cause)
	}
	if !errors.Is(appError, cause) {
		t.Error("errors.Is should see through AppError")
	}

	if ConfigError("no cause").Unwrap() != nil {
		t.Error("AppError.Unwrap() without cause should be nil")
	}
}

func TestAppError_WithContextAndCode(t *testing.T) {
	appError := ValidationError("validation failed")

	result := appError.WithContext("field", "window").WithCode("RL002")
	if result != appError {
		t.Error("WithContext should return the same instance")
	}
	if appError.Context["field"] != "window" {
		t.Errorf("Context[field] = %v, want window", appError.Context["field"])
	}
	if appError.Code != "RL002" {
		t.Errorf("Code = %v, want RL002", appError.Code)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		errType ErrorType
		message string
	}{
		{"validation", ValidationError("bad"), ErrTypeValidation, "bad"},
		{"config", ConfigError("bad config"), ErrTypeConfig, "bad config"},
		{"not found", NotFoundError("rate limit policy auth.login"), ErrTypeNotFound, "rate limit policy auth.login not found"},
		{"store", StoreError("scan", nil), ErrTypeStore, "store scan failed"},
		{"internal", InternalError("boom", nil), ErrTypeInternal, "boom"},
		{"unavailable", UnavailableError("redis", nil), ErrTypeUnavailable, "redis is unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.errType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.errType)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestIsTypeAndGetType(t *testing.T) {
	wrapped := fmt.Errorf("registering policy: %w", ConfigError("limit must be positive"))

	if !IsType(wrapped, ErrTypeConfig) {
		t.Error("IsType should match a wrapped AppError")
	}
	if IsType(wrapped, ErrTypeStore) {
		t.Error("IsType should not match a different type")
	}
	if IsType(nil, ErrTypeConfig) {
		t.Error("IsType(nil) should be false")
	}
	if IsType(errors.New("plain"), ErrTypeConfig) {
		t.Error("IsType should be false for plain errors")
	}

	if got := GetType(wrapped); got != ErrTypeConfig {
		t.Errorf("GetType() = %v, want %v", got, ErrTypeConfig)
	}
	if got := GetType(errors.New("plain")); got != ErrTypeInternal {
		t.Errorf("GetType(plain) = %v, want %v", got, ErrTypeInternal)
	}
	if got := GetType(nil); got != "" {
		t.Errorf("GetType(nil) = %v, want empty", got)
	}
}
