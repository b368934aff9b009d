package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// registerRules are checked in order; the first failing tag names the message.
var registerRules = []struct {
	tag string
	msg string
}{
	{"required", "All fields are required"},
	{"email", "Invalid email format"},
	{"min", "Password must be at least 6 characters"},
	{"oneof", "Invalid role"},
}

// RegisterMessage translates a validation failure of RegisterInput.
// A body that could not be decoded counts as missing fields.
func RegisterMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, rule := range registerRules {
			for _, fe := range verrs {
				if fe.Tag() == rule.tag {
					return rule.msg
				}
			}
		}
	}
	return "All fields are required"
}

// LoginMessage translates a validation failure of LoginInput.
func LoginMessage(error) string {
	return "Email and password are required"
}
