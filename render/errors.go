package render

import (
	"errors"
	"strconv"

	"github.com/itsatony/go-cuserr"

	"github.com/sqlview/rowpage/internal/template"
)

// Error code constants, one per spec.md §7 error kind not already owned by
// a lower-level package (template.ErrCodeTemplateCompile, template.ErrCodeRender,
// row.ErrCodeRowDecode, registry.ErrCodeUnknownComponent).
const (
	ErrCodeBadDynamic     = "ROWPAGE_BAD_DYNAMIC"
	ErrCodeRecursionLimit = "ROWPAGE_RECURSION_LIMIT"
	ErrCodeSinkIO         = "ROWPAGE_SINK_IO"
)

const maxDynamicDepth = 256

func newBadDynamicError(reason string) error {
	return cuserr.NewValidationError(ErrCodeBadDynamic, "malformed dynamic properties: "+reason)
}

func newRecursionLimitError(depth int) error {
	return cuserr.NewValidationError(ErrCodeRecursionLimit, "dynamic expansion recursion limit exceeded").
		WithMetadata("depth", strconv.Itoa(depth)).
		WithMetadata("limit", strconv.Itoa(maxDynamicDepth))
}

func newSinkIOError(cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeSinkIO, "sink write failed")
}

// asSinkError reports whether err originated from a failed write to the
// byte sink (template.SinkWriteError) rather than from template
// evaluation, and returns the underlying cause. spec.md §7 requires Sink
// I/O to propagate to the caller instead of being recovered through
// HandleError, so every call site in context.go that handles a Renderer
// failure checks this first.
func asSinkError(err error) (error, bool) {
	var sinkErr *template.SinkWriteError
	if errors.As(err, &sinkErr) {
		return sinkErr.Cause, true
	}
	return nil, false
}
