package validation

import (
	"fmt"
	"strings"
	"testing"

	apperrors "rate-limiter/internal/common/errors"

	"github.com/go-playground/validator/v10"
)

type schedule struct {
	Cron    string `json:"cron" validate:"required,cron_expression"`
	Timeout string `json:"timeout" validate:"duration"`
	Shards  int    `json:"shards" validate:"min=1,max=1024"`
}

func TestValidateStruct_CommonTags(t *testing.T) {
	tests := []struct {
		name    string
		input   schedule
		wantErr string
	}{
		{"valid five-field cron", schedule{"*/5 * * * *", "30s", 16}, ""},
		{"valid descriptor", schedule{"@every 1m", "1m", 1}, ""},
		{"invalid cron", schedule{"every minute", "30s", 16}, "field 'cron' must be a valid cron expression"},
		{"invalid duration", schedule{"@hourly", "soon", 16}, "field 'timeout' must be a valid duration"},
		{"shards too low", schedule{"@hourly", "1s", 0}, "field 'shards' must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateStruct() error = %v, want %q", err, tt.wantErr)
			}
			if !apperrors.IsType(err, apperrors.ErrTypeValidation) {
				t.Errorf("expected validation error type, got %v", apperrors.GetType(err))
			}
		})
	}
}

func TestRegisterTag(t *testing.T) {
	cv := NewCentralizedValidator()
	err := cv.RegisterTag("even", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	}, "field '%s' must be even")
	if err != nil {
		t.Fatalf("RegisterTag() error = %v", err)
	}

	type payload struct {
		N int `json:"n" validate:"even"`
	}

	if err := cv.ValidateStruct(payload{N: 4}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err = cv.ValidateStruct(payload{N: 3})
	if err == nil || !strings.Contains(err.Error(), "field 'n' must be even") {
		t.Errorf("expected custom message, got %v", err)
	}

	details := cv.Details(payload{N: 3})
	if len(details) != 1 || details[0].Tag != "even" || details[0].Field != "n" {
		t.Errorf("Details() = %+v", details)
	}
}

func TestFluentValidator(t *testing.T) {
	v := NewFluentValidatorWithPrefix("config")
	v.RequireString("", "PORT").
		RequirePositive(0, "LOCK_STRIPES").
		RequireRange(5000, 1, 1024, "MEMORY_SHARDS").
		RequireOneOf("etcd", []string{"memory", "redis"}, "STORE_TYPE").
		RequireTag("not a cron", "cron_expression", "CLEANUP_SCHEDULE").
		ValidateIf(true, func() error { return fmt.Errorf("custom failure") })

	if !v.HasErrors() {
		t.Fatal("expected errors")
	}

	msg := v.Error().Error()
	for _, want := range []string{
		"config: PORT is required",
		"LOCK_STRIPES must be positive",
		"MEMORY_SHARDS must be between 1 and 1024",
		"STORE_TYPE must be one of: memory, redis",
		"CLEANUP_SCHEDULE is invalid",
		"custom failure",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}

	ok := NewFluentValidator().
		RequireString("8080", "PORT").
		RequireOneOf("redis", []string{"memory", "redis"}, "STORE_TYPE").
		ValidateIf(false, func() error { return fmt.Errorf("skipped") })
	if ok.Error() != nil {
		t.Errorf("expected no errors, got %v", ok.Error())
	}
}
