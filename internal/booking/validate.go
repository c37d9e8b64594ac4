package booking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
)

var validate = validator.New()

// ValidationError carries field-level messages keyed like Session.Errors.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid contact fields: %s", strings.Join(sortedKeys(e.Fields), ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidContact }

// ValidateContact checks the contact fields against the calendar's form
// configuration. It returns nil when every enabled required field is valid.
func ValidateContact(c Contact, form schedule.FormConfig) *ValidationError {
	fields := make(map[string]string)
	check := func(key, value, tag string) {
		if tag == "" {
			return
		}
		if err := validate.Var(strings.TrimSpace(value), tag); err != nil {
			if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
				fields[key] = fieldMessage(verrs[0])
				return
			}
			fields[key] = "Valor inválido"
		}
	}

	check(FieldName, c.Name, "required")
	check(FieldEmail, c.Email, "required,email")
	if form.Phone.Enabled {
		check(FieldPhone, c.Phone, requiredTag(form.Phone.Required, "max=40"))
	}
	if form.Notes.Enabled {
		check(FieldNotes, c.Notes, requiredTag(form.Notes.Required, "max=2000"))
	}
	for _, f := range form.CustomFields {
		key := CustomFieldKey(f.Key)
		check(key, c.Custom[f.Key], customTag(f))
		if _, failed := fields[key]; !failed && isSelect(f) && !validOption(c.Custom[f.Key], f.Options) {
			fields[key] = "Elegí una de las opciones"
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func requiredTag(required bool, rest string) string {
	if required {
		return "required," + rest
	}
	return "omitempty," + rest
}

func customTag(f schedule.CustomField) string {
	var rules []string
	switch strings.ToLower(f.Type) {
	case "email":
		rules = append(rules, "email")
	case "number":
		rules = append(rules, "numeric")
	}
	if len(rules) == 0 {
		if f.Required {
			return "required"
		}
		return ""
	}
	return requiredTag(f.Required, strings.Join(rules, ","))
}

func isSelect(f schedule.CustomField) bool {
	return strings.EqualFold(f.Type, "select") && len(f.Options) > 0
}

// validOption accepts an empty value; emptiness is the required rule's job.
func validOption(value string, options []string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "Este campo es obligatorio"
	case "email":
		return "Ingresá un email válido"
	case "numeric":
		return "Ingresá solo números"
	case "max":
		return fmt.Sprintf("Máximo %s caracteres", err.Param())
	default:
		return "Valor inválido"
	}
}
