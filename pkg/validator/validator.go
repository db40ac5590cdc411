package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
)

// DateLayout is the calendar date format accepted by date fields.
const DateLayout = "2006-01-02"

var phonePattern = regexp.MustCompile(`^[+]?[1-9][\d]{0,15}$`)

var messages = map[string]string{
	"required":  "is required",
	"email":     "must be a valid email",
	"phone":     "must be a valid phone number",
	"notfuture": "must not be in the future",
	"uuid":      "must be a valid id",
	"datetime":  "must be a date in %s format",
	"oneof":     "must be one of: %s",
	"min":       "must be at least %s",
	"trimmin":   "must be at least %s characters, not counting surrounding spaces",
	"max":       "must be at most %s",
	"gte":       "must be greater than or equal to %s",
	"lte":       "must be less than or equal to %s",
}

var registerOnce sync.Once

// Register installs the custom rules and json field naming on gin's
// default validator engine. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		configure(v)
	})
}

// New returns a standalone validator configured like gin's.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	configure(v)
	return v
}

func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form", "uri"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	// trimmin=N is min=N applied to the value with surrounding whitespace
	// removed, matching what the services store.
	_ = v.RegisterValidation("trimmin", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
	})

	_ = v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		switch val := fl.Field().Interface().(type) {
		case time.Time:
			return !val.After(time.Now())
		case string:
			t, err := time.Parse(DateLayout, val)
			if err != nil {
				return false
			}
			return !t.After(time.Now())
		default:
			return false
		}
	})
}

// IsPhone reports whether s is an acceptable phone number.
func IsPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// Translate turns a binding error into an application error. Validation
// failures keep their per-field messages; anything else is a malformed body.
func Translate(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   fe.Field(),
				Message: fieldMessage(fe),
			})
		}
		return apperrors.Validation(fields)
	}
	return apperrors.BadRequest("Invalid request data", err)
}

func fieldMessage(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	if strings.Contains(msg, "%s") {
		msg = fmt.Sprintf(msg, fe.Param())
	}
	return fmt.Sprintf("%s %s", fe.Field(), msg)
}
