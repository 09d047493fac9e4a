// Package validation validates configuration and API request structs using
// the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	domainerrors "github.com/tigertag/tigertag-server/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// tagPrefixPattern is what an engine prefix may look like. The underscore
// separates prefix from label in tag names, so it cannot appear here.
var tagPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)

var defaultValidator = sync.OnceValue(New)

// Default returns the shared validator.
func Default() *Validator {
	return defaultValidator()
}

// New creates a validator that reports fields by their json (or env) tag.
func New() *Validator {
	v := validator.New()

	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("tagprefix", func(fl validator.FieldLevel) bool {
		return tagPrefixPattern.MatchString(fl.Field().String())
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "env"} {
			name := fld.Tag.Get(key)
			if name == "" || name == "-" {
				continue
			}
			if i := strings.IndexByte(name, ','); i >= 0 {
				name = name[:i]
			}
			return name
		}
		return fld.Name
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a validation error listing every
// offending field.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Var validates a single value against tag. The error names field.
func (v *Validator) Var(field string, value any, tag string) error {
	err := v.v.Var(value, tag)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	msg := friendlyMessage(validationErrs[0])
	return domainerrors.ValidationWithDetails(field+" "+msg, map[string]string{field: msg})
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = friendlyMessage(e)
	}

	fields := make([]string, 0, len(fieldErrors))
	for f := range fieldErrors {
		fields = append(fields, f+" "+fieldErrors[f])
	}
	sort.Strings(fields)

	return domainerrors.ValidationWithDetails(
		"validation failed: "+strings.Join(fields, "; "), fieldErrors)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "numeric":
		return "must be numeric"
	case "tagprefix":
		return "must be 1 to 16 letters or digits"
	default:
		return "is invalid"
	}
}
