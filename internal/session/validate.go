package session

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
	"github.com/go-playground/validator/v10"
)

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,63}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sessionname", isSessionName)
	_ = v.RegisterValidation("scheme", func(fl validator.FieldLevel) bool {
		_, err := normalize.ParseScheme(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("pcamethod", func(fl validator.FieldLevel) bool {
		_, err := pca.ParseMethod(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("linkage", func(fl validator.FieldLevel) bool {
		_, err := hca.ParseLinkage(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func isSessionName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return sessionNamePattern.MatchString(s) && !strings.Contains(s, "..")
}

// ValidName reports whether name can be used as a session directory.
func ValidName(name string) bool {
	return sessionNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// Validate checks struct tags on v and reports failures as InvalidInput.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.New(apperr.KindInvalidInput, "validation failed", err)
	}
	parts := make([]string, 0, len(verrs))
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Field() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		parts = append(parts, msg)
		fields[fe.Field()] = fe.Tag()
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return apperr.Newf(apperr.KindInvalidInput, "invalid %s: %s", t.Name(), strings.Join(parts, "; ")).
		WithContext("fields", fields)
}
