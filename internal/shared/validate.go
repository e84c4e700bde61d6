package shared

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

// fieldParam resolves a cross-field parameter (eqfield=Password) to the same JSON name the
// failing field is reported under.
func fieldParam(root reflect.Type, fe validator.FieldError) string {
	t := root
	parts := strings.Split(fe.StructNamespace(), ".")
	for _, part := range parts[1 : len(parts)-1] {
		for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Map {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return fe.Param()
		}
		f, ok := t.FieldByName(strings.SplitN(part, "[", 2)[0])
		if !ok {
			return fe.Param()
		}
		t = f.Type
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fe.Param()
	}
	if f, ok := t.FieldByName(fe.Param()); ok {
		return jsonName(f)
	}
	return fe.Param()
}

var fieldMessages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"min":      "%s must be at least %s characters",
	"max":      "%s must be at most %s characters",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be at least %s",
	"lte":      "%s must be at most %s",
	"oneof":    "%s must be one of [%s]",
	"eqfield":  "%s must match %s",
}

// ValidationError carries per-field messages keyed by JSON field name.
//
// It unwraps to [ErrInvalidInput].
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return fmt.Sprintf("%v: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Validate checks v against its `validate` struct tags.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	root := reflect.TypeOf(v)
	for root.Kind() == reflect.Pointer {
		root = root.Elem()
	}

	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = fieldMessage(root, fe)
	}
	return out
}

func fieldMessage(root reflect.Type, fe validator.FieldError) string {
	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	switch {
	case strings.HasSuffix(fe.Tag(), "field"):
		return fmt.Sprintf(msg, fe.Field(), fieldParam(root, fe))
	case strings.Count(msg, "%s") == 2:
		return fmt.Sprintf(msg, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(msg, fe.Field())
}
