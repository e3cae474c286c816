package template

import "github.com/itsatony/go-cuserr"

// Error code constants for categorization, mirroring the retrieval pack's
// convention of one stable string code per error family.
const (
	ErrCodeTemplateCompile = "ROWPAGE_TEMPLATE_COMPILE"
)

// Metadata keys attached to compile errors.
const (
	MetaKeyTemplateName = "template_name"
)

// CompileError wraps a *cuserr.CustomError with the failing template's name
// attached as metadata, so registry.register_directory can log it and move
// on without losing context.
func CompileError(name string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeTemplateCompile, "template compile failed").
		WithMetadata(MetaKeyTemplateName, name)
}

// SinkWriteError marks a failure that occurred writing to the caller's
// io.Writer, as distinct from a failure evaluating the template itself.
// spec.md §7 treats these as different error kinds — Sink I/O propagates
// to the caller and tears the context down, while Render is recovered
// locally through the error component — so evalNode tags every write it
// makes to the sink with this type, and render.Context uses errors.As to
// tell the two apart before deciding how to handle a Renderer failure.
type SinkWriteError struct {
	Cause error
}

func (e *SinkWriteError) Error() string { return e.Cause.Error() }

func (e *SinkWriteError) Unwrap() error { return e.Cause }
