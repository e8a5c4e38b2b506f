package processor

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a boundary record against its struct tags. Failures are 400s naming
// every offending field.
func Validate[T any](value T) error {
	if err := validate.Struct(value); err != nil {
		return validationError(value, err)
	}
	return nil
}

func validationError(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s' (param '%s', got '%v')", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %T: %s", input, strings.Join(msgs, "; "))
}
