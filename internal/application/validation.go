package application

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// validateStruct runs the struct tags and converts failures into field
// errors keyed by JSON path, e.g. "participants[1].email".
func validateStruct(value any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidator().Struct(value)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return vErr
	}

	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
	return vErr
}

func fieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func validateChatRoomInput(input ChatRoomInput) *ValidationError {
	vErr := validateStruct(input)

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "is required")
	}

	emails := distinctEmails(input.Participants)
	if len(emails) < 2 {
		vErr.add("participants", "at least two distinct participant emails are required")
	}
	return vErr
}

func validateParticipantInputs(participants []ParticipantInput) *ValidationError {
	vErr := &ValidationError{}
	if len(participants) == 0 {
		vErr.add("participants", "at least one participant is required")
		return vErr
	}
	vErr.merge(validateStruct(struct {
		Participants []ParticipantInput `json:"participants" validate:"dive"`
	}{participants}))
	return vErr
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func distinctEmails(participants []ParticipantInput) []string {
	return lo.Uniq(lo.Compact(lo.Map(participants, func(p ParticipantInput, _ int) string {
		return normalizeEmail(p.Email)
	})))
}
