package service

import (
	"errors"

	"diffatours/internal/capacity/validator"
	apperrors "diffatours/pkg/errors"
)

// validationFailure maps validator output onto the public error codes. Date
// and participant problems get their own codes so clients can point at the
// offending field.
func validationFailure(err error, message string) *apperrors.AppError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return apperrors.Validation(message, map[string]any{"error": err.Error()})
	}

	if e, ok := errs.First(validator.TagCalendarDate); ok {
		appErr := apperrors.InvalidDate(e.Value)
		appErr.Details["field"] = e.Field
		return appErr
	}
	if e, ok := errs.First(validator.TagParticipants); ok {
		return apperrors.InvalidParticipantCount(e.Message, map[string]any{
			"field": e.Field,
			"value": e.Value,
		})
	}
	return apperrors.Validation(message, map[string]any{"errors": []validator.ValidationError(errs)})
}
