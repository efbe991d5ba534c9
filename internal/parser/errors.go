package parser

import "fmt"

// EmptyInputError reports an upload with no data rows. It is fatal: the run
// stops before any network call.
type EmptyInputError struct {
	Format Format
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("parser: %s input has no data rows", e.Format)
}

// SchemaError reports an upload whose root shape is not a sequence of field
// mappings. It is fatal.
type SchemaError struct {
	Format Format
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("parser: invalid %s schema: %s", e.Format, e.Reason)
}
