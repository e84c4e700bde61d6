package shared

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

type signup struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"min=6"`
	Amount   float64 `json:"amount" validate:"gt=0"`
}

func TestValidate(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		in := signup{Name: "Asha", Email: "asha@example.com", Password: "secret1", Amount: 10}
		if err := Validate(in); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("field messages use json names", func(t *testing.T) {
		in := signup{Email: "nope", Password: "123"}
		err := Validate(in)
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected *ValidationError, got %T", err)
		}

		tc := map[string]string{
			"name":     "name is required",
			"email":    "email must be a valid email address",
			"password": "password must be at least 6 characters",
			"amount":   "amount must be greater than 0",
		}
		for field, want := range tc {
			if got := ve.Fields[field]; got != want {
				t.Errorf("field %s: expected %q, got %q", field, want, got)
			}
		}
	})

	t.Run("cross-field messages use json names", func(t *testing.T) {
		type passwords struct {
			Password string `json:"password" validate:"required"`
			Confirm  string `json:"confirmPassword" validate:"eqfield=Password"`
		}
		type account struct {
			Login passwords `json:"login"`
		}

		var ve *ValidationError
		if !errors.As(Validate(passwords{Password: "secret1", Confirm: "other"}), &ve) {
			t.Fatal("expected *ValidationError")
		}
		if got := ve.Fields["confirmPassword"]; got != "confirmPassword must match password" {
			t.Errorf("expected %q, got %q", "confirmPassword must match password", got)
		}

		if !errors.As(Validate(&account{Login: passwords{Password: "secret1", Confirm: "other"}}), &ve) {
			t.Fatal("expected *ValidationError for nested struct")
		}
		if got := ve.Fields["confirmPassword"]; got != "confirmPassword must match password" {
			t.Errorf("nested: expected %q, got %q", "confirmPassword must match password", got)
		}
	})

	t.Run("error string is stable", func(t *testing.T) {
		err := Validate(signup{Name: "x", Email: "x@example.com", Password: "secret1"})
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.HasPrefix(err.Error(), "invalid input: amount must be greater than 0") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
}

func TestLogger(t *testing.T) {
	t.Run("ApplyLogLevel", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)

		if err := ApplyLogLevel(logger, "debug"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", logger.GetLevel())
		}

		if err := ApplyLogLevel(logger, "loud"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
		if err := ApplyLogLevel(logger, ""); err != nil {
			t.Errorf("expected empty level to be ignored, got %v", err)
		}
	})

	t.Run("NewFileLogger creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "shelf.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		logger.Info("hello")
	})

	t.Run("GenerateID", func(t *testing.T) {
		a, b := GenerateID(), GenerateID()
		if a == b {
			t.Error("expected unique ids")
		}
		if len(a) != 36 {
			t.Errorf("expected uuid string, got %s", a)
		}
	})
}
