package validation

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// use the JSON tag as the field name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// filename: a bare file name, no directory part
	_ = validate.RegisterValidation("filename", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name != "" && name != "." && name != ".." &&
			!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
	})
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ErrorsToJson renders validation errors as {"field": "failed tag"}.
func ErrorsToJson(validationErrs error) (string, error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(validationErrs, &fieldErrs) {
		return "", validationErrs
	}

	errsMap := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		errsMap[fieldErr.Field()] = fieldErr.Tag()
	}

	errsJson, err := json.Marshal(errsMap)
	if err != nil {
		return "", err
	}
	return string(errsJson), nil
}
