package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the context.
const (
	// FieldRunID identifies one scheduled invocation.
	FieldRunID = "run_id"

	// FieldComponent is the component/module name.
	FieldComponent = "component"
)

// Domain fields.
const (
	// FieldDate is a wallpaper start date, also its cache directory name.
	FieldDate = "date"

	// FieldPath is a filesystem path.
	FieldPath = "path"

	// FieldURL is a remote URL.
	FieldURL = "url"

	// FieldCommand is an external command line.
	FieldCommand = "command"

	// FieldExitCode is an external command's exit status.
	FieldExitCode = "exit"
)

// Metric fields, used with the Entry API.
const (
	// FieldDurationMs is the execution duration in milliseconds.
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field.
	FieldCount = "count"

	// FieldSize is the data size in bytes.
	FieldSize = "size"
)
