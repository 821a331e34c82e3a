package schema

import (
	"fmt"

	"github.com/harborview/dealscope/internal/models"
)

// SchemaError reports a missing or malformed field in a stage response.
// The named stage is marked Failed; retrying without new upstream input
// will not help.
type SchemaError struct {
	Stage  models.Stage
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s output invalid: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s output invalid: field %q %s", e.Stage, e.Field, e.Reason)
}

func missingField(stage models.Stage, field string) *SchemaError {
	return &SchemaError{Stage: stage, Field: field, Reason: "is required but missing"}
}

func malformedField(stage models.Stage, field string, err error) *SchemaError {
	return &SchemaError{Stage: stage, Field: field, Reason: fmt.Sprintf("is malformed: %v", err)}
}
