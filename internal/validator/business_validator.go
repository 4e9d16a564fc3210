package validator

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ncsedu/grading-service/internal/models"
)

// BusinessValidator handles struct and business rule validation.
type BusinessValidator struct {
	validate *validator.Validate
}

// New creates a validator with the domain rules registered.
func New() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates struct tags for any request.
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateScheduleWindow checks the opens/closes pair is coherent.
func (bv *BusinessValidator) ValidateScheduleWindow(opensAt, closesAt *time.Time) ValidationErrors {
	var errors ValidationErrors

	if opensAt != nil && closesAt != nil && !closesAt.After(*opensAt) {
		errors = append(errors, ValidationError{
			Field:   "closes_at",
			Message: "must be after opens_at",
			Value:   closesAt,
			Rule:    "schedule_window",
		})
	}

	return errors
}

// ValidateEvaluationScores checks element scores against the unit's elements.
// Score keys are element IDs as strings. Every scored element must belong to
// the unit and stay within its max score.
func (bv *BusinessValidator) ValidateEvaluationScores(scores map[string]float64, elements []*models.CompetencyElement) ValidationErrors {
	var errors ValidationErrors

	maxByID := make(map[string]float64, len(elements))
	for _, element := range elements {
		maxByID[strconv.FormatUint(uint64(element.ID), 10)] = float64(element.MaxScore)
	}

	for id, score := range scores {
		max, ok := maxByID[id]
		if !ok {
			errors = append(errors, ValidationError{
				Field:   "scores." + id,
				Message: "element does not belong to this competency unit",
				Value:   id,
				Rule:    "unknown_element",
			})
			continue
		}
		if score < 0 || score > max {
			errors = append(errors, ValidationError{
				Field:   "scores." + id,
				Message: "score is out of range for this element",
				Value:   score,
				Rule:    "score_range",
			})
		}
	}

	return errors
}

// ValidateStatusTransition validates evaluation lifecycle transitions.
func (bv *BusinessValidator) ValidateStatusTransition(current, next models.EvaluationStatus) ValidationErrors {
	var errors ValidationErrors

	if !next.Valid() {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "unknown status",
			Value:   next,
			Rule:    "status",
		})
		return errors
	}

	if !current.CanTransitionTo(next) {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "cannot transition from " + string(current) + " to " + string(next),
			Value:   next,
			Rule:    "status_transition",
		})
	}

	return errors
}

func (bv *BusinessValidator) registerBusinessRules() {
	// Role must be one of the closed set. Admin is additionally rejected at
	// profile creation by the service layer.
	bv.validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).Valid()
	})

	bv.validate.RegisterValidation("theme", func(fl validator.FieldLevel) bool {
		return models.Theme(fl.Field().String()).Valid()
	})

	// Unit and element codes: short uppercase identifiers like "CU-01".
	bv.validate.RegisterValidation("competency_code", func(fl validator.FieldLevel) bool {
		code := strings.TrimSpace(fl.Field().String())
		return len(code) >= 1 && len(code) <= 50
	})

	bv.validate.RegisterValidation("schedule_status", func(fl validator.FieldLevel) bool {
		status := models.ScheduleStatus(fl.Field().String())
		return status == models.ScheduleOpen || status == models.ScheduleClosed
	})
}
