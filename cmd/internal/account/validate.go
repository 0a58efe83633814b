package account

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields under their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Registration is the sign-up input. Password length is enforced by the
// password policy, not here.
type Registration struct {
	FirstName string `json:"firstname" validate:"required,max=50"`
	LastName  string `json:"lastname"  validate:"required,max=50"`
	Username  string `json:"username"  validate:"required,min=3,max=30,username"`
	Email     string `json:"email"     validate:"required,email,max=254"`
	Password  string `json:"password"  validate:"required"`
}

// Normalize trims names and canonicalizes username and e-mail in place.
func (r *Registration) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Username = NormalizeUsername(r.Username)
	r.Email = NormalizeEmail(r.Email)
}

// Validate checks v against its `validate` struct tags and returns a
// *ValidationError listing every failed field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return OpError{Op: "account.Validate", Kind: ErrInvalidInput, Msg: err.Error()}
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(ves))}
	for _, fe := range ves {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}
