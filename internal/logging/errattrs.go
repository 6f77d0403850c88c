package logging

import (
	"fmt"

	"github.com/samber/oops"
)

// ErrAttrs returns key–value pairs describing err for a log line. oops errors
// contribute their code and context.
func ErrAttrs(err error) []any {
	if err == nil {
		return nil
	}

	attrs := []any{"error", err.Error()}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return attrs
	}

	if code := fmt.Sprint(oopsErr.Code()); code != "" && code != "<nil>" {
		attrs = append(attrs, "error_code", code)
	}
	for k, v := range oopsErr.Context() {
		attrs = append(attrs, "error_"+k, v)
	}
	return attrs
}
