// Package validation wires go-playground/validator into gin with JSON field
// names and English messages, and converts binding errors into response fields.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/aura-learn/backend/pkg/response"
)

var (
	once       sync.Once
	setupErr   error
	validate   *validator.Validate
	translator ut.Translator
)

// Setup configures gin's validator. It is safe to call more than once.
func Setup() error {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			setupErr = errors.New("validation: gin validator engine is not validator/v10")
			return
		}
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		translator, _ = uni.GetTranslator("en")
		validate = v
		setupErr = Init(v, translator)
	})
	return setupErr
}

// Init installs default English translations and JSON tag names on v.
func Init(v *validator.Validate, trans ut.Translator) error {
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return fmt.Errorf("register translations: %w", err)
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return RegisterMessage(v, trans, "datetime", "must be an ISO 8601 date-time")
}

// Register adds a custom validation tag with its message to gin's validator.
func Register(tag string, fn validator.Func, message string) error {
	if err := Setup(); err != nil {
		return err
	}
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("register %s: %w", tag, err)
	}
	return RegisterMessage(validate, translator, tag, message)
}

// RegisterMessage sets the message for tag as "<field> <message>".
func RegisterMessage(v *validator.Validate, trans ut.Translator, tag, message string) error {
	return v.RegisterTranslation(
		tag, trans,
		func(t ut.Translator) error { return t.Add(tag, "{0} "+message, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Fields converts an error from ShouldBindJSON into field errors.
func Fields(err error) []response.FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]response.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			msg := fe.Error()
			if translator != nil {
				msg = fe.Translate(translator)
			}
			out = append(out, response.FieldError{Field: fe.Field(), Message: msg})
		}
		return out
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []response.FieldError{{Field: typeErr.Field, Message: fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type)}}
	}
	if errors.Is(err, io.EOF) {
		return []response.FieldError{{Field: "body", Message: "request body is required"}}
	}
	return []response.FieldError{{Field: "body", Message: err.Error()}}
}
