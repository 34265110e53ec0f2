package core

import (
	"github.com/go-playground/validator/v10"

	"stagecall/internal/types"
)

// Validator wraps go-playground/validator for request payload validation.
// A single instance is shared across handlers; the underlying validator
// caches struct metadata and is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with struct tag validation enabled.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct checks the struct's validate tags and converts failures
// into a 400 AppError listing each offending field and its failed rule.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		map[string]any{"fields": fields},
	)
}
