// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/cellvault/internal/errors"
)

var (
	// slugRegex matches cell names: lowercase letters, digits, dot, dash and underscore.
	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Slug validates a lowercase, URL-safe name.
var Slug = validation.NewStringRuleWithError(
	func(s string) bool {
		return slugRegex.MatchString(s)
	},
	validation.NewError("validation_slug", "must contain only lowercase letters, digits, '.', '-' or '_'"),
)

// Identifier validates subject and secret identifiers. Control characters are
// rejected because storage keys use them as separators.
var Identifier = validation.NewStringRuleWithError(
	func(s string) bool {
		for _, r := range s {
			if unicode.IsControl(r) || !unicode.IsPrint(r) {
				return false
			}
		}
		return true
	},
	validation.NewError("validation_identifier", "must not contain control characters"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// RequiredUUID validates that a uuid.UUID is not the nil UUID.
var RequiredUUID = validation.By(func(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok {
		return validation.NewError("validation_uuid_type", "must be a uuid")
	}
	if id == uuid.Nil {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
})
