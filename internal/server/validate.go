package server

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/couuas/serv00-ghost/internal/apierr"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names, not Go ones
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs the `validate` tags of s and returns a Validation
// error naming every failing field.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.Wrap(apierr.KindValidation, "validation failed", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	sort.Strings(fields)
	return apierr.New(apierr.KindValidation, "invalid fields: "+strings.Join(fields, ", "))
}
