package apperror

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var fieldCaser = cases.Title(language.English)

func formatFieldName(s string) string {
	return fieldCaser.String(strings.ReplaceAll(s, "_", " "))
}

// MapValidationError converts the first validator failure into a
// human-readable AppError.
func MapValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return New(CodeInvalidInput, "invalid input", http.StatusBadRequest)
	}

	first := verrs[0]
	field := formatFieldName(first.Field())
	if first.Tag() == "required" {
		return RequiredField(field)
	}
	return InvalidField(field)
}
