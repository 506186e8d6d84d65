package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"diffatours/pkg/caldate"
	"diffatours/pkg/logger"
	"diffatours/pkg/model"

	"github.com/go-playground/validator/v10"
)

const (
	TagCalendarDate = "calendar_date"
	TagParticipants = "participants"
	TagLineItems    = "line_items"
	TagDateRange    = "date_range"
	TagMonth        = "month"
)

// MaxRangeDays bounds the operator list query.
const MaxRangeDays = 366

// MaxBracketParticipants caps a single age bracket when no per-item limit is configured.
const MaxBracketParticipants = 10000

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
	Tag     string `json:"-"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// First returns the first error carrying tag.
func (v ValidationErrors) First(tag string) (ValidationError, bool) {
	for _, err := range v {
		if err.Tag == tag {
			return err, true
		}
	}
	return ValidationError{}, false
}

type Limits struct {
	MaxParticipantsPerItem int
	MaxLineItems           int
}

type CapacityValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
	limits   Limits
}

func NewCapacityValidator(log *logger.Logger, limits Limits) *CapacityValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation(TagCalendarDate, validateCalendarDate); err != nil {
		log.Fatal("Failed to register 'calendar_date' validator", "error", err)
	}

	log.Debug("Capacity validator initialized", "max_participants_per_item", limits.MaxParticipantsPerItem, "max_line_items", limits.MaxLineItems)

	return &CapacityValidator{
		validate: v,
		logger:   log,
		limits:   limits,
	}
}

func validateCalendarDate(fl validator.FieldLevel) bool {
	return caldate.Valid(fl.Field().String())
}

func (v *CapacityValidator) ValidateDay(excursionID, date string) error {
	var errs ValidationErrors
	errs = append(errs, v.excursionID(excursionID)...)
	if !caldate.Valid(date) {
		errs = append(errs, ValidationError{
			Field:   "date",
			Message: caldate.ErrInvalidDate.Error(),
			Value:   date,
			Tag:     TagCalendarDate,
		})
	}
	return errs.orNil()
}

func (v *CapacityValidator) ValidateUpdate(excursionID, date string, update *model.CapacityUpdate) error {
	errs := ValidationErrors{}
	if err := v.ValidateDay(excursionID, date); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	if update == nil {
		errs = append(errs, ValidationError{Field: "max_capacity", Message: "max_capacity is required", Tag: "required"})
		return errs
	}
	if err := v.validate.Struct(update); err != nil {
		errs = append(errs, v.translate(err)...)
	}
	return errs.orNil()
}

func (v *CapacityValidator) ValidateMonth(excursionID string, year, month int) error {
	errs := v.excursionID(excursionID)
	if err := caldate.ValidateMonth(year, month); err != nil {
		errs = append(errs, ValidationError{
			Field:   "month",
			Message: err.Error(),
			Value:   fmt.Sprintf("%04d-%02d", year, month),
			Tag:     TagMonth,
		})
	}
	return errs.orNil()
}

func (v *CapacityValidator) ValidateRange(excursionID, from, to string) error {
	errs := v.excursionID(excursionID)
	for _, f := range [][2]string{{"from", from}, {"to", to}} {
		if !caldate.Valid(f[1]) {
			errs = append(errs, ValidationError{Field: f[0], Message: caldate.ErrInvalidDate.Error(), Value: f[1], Tag: TagCalendarDate})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	span, _ := caldate.SpanDays(from, to)
	switch {
	case span < 1:
		errs = append(errs, ValidationError{Field: "to", Message: "to must not be before from", Value: to, Tag: TagDateRange})
	case span > MaxRangeDays:
		errs = append(errs, ValidationError{Field: "to", Message: fmt.Sprintf("range must not exceed %d days", MaxRangeDays), Value: to, Tag: TagDateRange})
	}
	return errs.orNil()
}

// ValidateItems checks line items of an admission or release request.
func (v *CapacityValidator) ValidateItems(items []model.LineItem) error {
	var errs ValidationErrors

	if len(items) == 0 {
		return ValidationErrors{{Field: "items", Message: "items must contain at least 1 line item", Tag: "required"}}
	}
	if v.limits.MaxLineItems > 0 && len(items) > v.limits.MaxLineItems {
		errs = append(errs, ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("an order can hold at most %d line items", v.limits.MaxLineItems),
			Value:   fmt.Sprint(len(items)),
			Tag:     TagLineItems,
		})
	}

	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)

		if err := v.validate.Struct(item); err != nil {
			for _, e := range v.translate(err) {
				e.Field = prefix + "." + e.Field
				errs = append(errs, e)
			}
		}

		if item.Breakdown != nil && item.Participants != 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".participants",
				Message: "send either participants or breakdown, not both",
				Tag:     TagParticipants,
			})
			continue
		}
		if item.Breakdown != nil {
			if e, bad := v.bracketOutOfRange(prefix, *item.Breakdown); bad {
				errs = append(errs, e)
				continue
			}
		}

		total := item.Total()
		if total < 1 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".participants",
				Message: "participants must be at least 1",
				Value:   fmt.Sprint(total),
				Tag:     TagParticipants,
			})
		} else if v.limits.MaxParticipantsPerItem > 0 && total > v.limits.MaxParticipantsPerItem {
			errs = append(errs, ValidationError{
				Field:   prefix + ".participants",
				Message: fmt.Sprintf("participants must be at most %d", v.limits.MaxParticipantsPerItem),
				Value:   fmt.Sprint(total),
				Tag:     TagParticipants,
			})
		}
	}

	return errs.orNil()
}

// bracketOutOfRange bounds every bracket before they are summed so the total cannot wrap.
func (v *CapacityValidator) bracketOutOfRange(prefix string, p model.Participants) (ValidationError, bool) {
	limit := v.limits.MaxParticipantsPerItem
	if limit <= 0 {
		limit = MaxBracketParticipants
	}

	brackets := []struct {
		name  string
		count int
	}{
		{"adults", p.Adults},
		{"children", p.Children},
		{"infants", p.Infants},
	}
	for _, b := range brackets {
		if b.count < 0 || b.count > limit {
			return ValidationError{
				Field:   prefix + ".breakdown." + b.name,
				Message: fmt.Sprintf("%s must be between 0 and %d", b.name, limit),
				Value:   fmt.Sprint(b.count),
				Tag:     TagParticipants,
			}, true
		}
	}
	return ValidationError{}, false
}

func (v *CapacityValidator) excursionID(id string) ValidationErrors {
	trimmed := strings.TrimSpace(id)
	switch {
	case trimmed == "":
		return ValidationErrors{{Field: "excursion_id", Message: "excursion_id is required", Tag: "required"}}
	case len(trimmed) > 64:
		return ValidationErrors{{Field: "excursion_id", Message: "excursion_id must be at most 64 characters", Tag: "max"}}
	}
	return nil
}

func (v *CapacityValidator) translate(err error) ValidationErrors {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}
	return v.translateValidationErrors(validationErrs)
}

func (v *CapacityValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()
		value := ""

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "ltefield":
			message = fmt.Sprintf("%s must not exceed %s", err.Field(), err.Param())
		case TagCalendarDate:
			message = caldate.ErrInvalidDate.Error()
			value = fmt.Sprint(err.Value())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
			Value:   value,
			Tag:     err.Tag(),
		})
	}

	return validationErrors
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
