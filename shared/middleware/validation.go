package middleware

import (
	"github.com/go-playground/validator/v10"
	"github.com/studyhub/account-service/shared/utils"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return utils.IsUsernameValid(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return utils.IsPasswordValid(fl.Field().String())
	})
	return v
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func ValidateRequest(obj any) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}

	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: getErrorMsg(err),
			Type:    err.Tag(),
		})
	}

	return validationErrors
}

// HasMissingField reports whether any of the errors is a failed "required" rule.
func HasMissingField(validationErrors []ValidationError) bool {
	for _, e := range validationErrors {
		if e.Type == "required" {
			return true
		}
	}
	return false
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "username":
		return "Username must be 3-32 characters: a letter followed by letters, digits, '_', '.' or '-'"
	case "password":
		return "Password must be 6-64 printable characters without spaces"
	case "oneof":
		return "Value must be one of: " + err.Param()
	default:
		return "Invalid value"
	}
}
