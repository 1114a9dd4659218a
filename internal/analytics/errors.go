package analytics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidContamination rejects detector construction outside the
// supported outlier fraction.
var ErrInvalidContamination = errors.New("analytics: contamination must be in [0, 0.5]")

// MissingColumnError reports an operation that strictly needs a column the
// table does not carry.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("analytics: column %q not found in data", e.Column)
}

// SchemaError reports required telemetry columns absent from an ingested
// table; the pipeline raises it before any further stage runs.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("analytics: missing required columns: %s", strings.Join(e.Missing, ", "))
}
