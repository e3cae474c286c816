package template

import (
	"errors"
	"io"

	"github.com/itsatony/go-cuserr"
)

// rendererState is the Fresh -> Started -> Ended lifecycle of a Renderer.
type rendererState int

const (
	stateFresh rendererState = iota
	stateStarted
	stateEnded
)

// Renderer drives one Split as the three-phase protocol described in
// spec.md §4.4: render_start exactly once, render_item any number of
// times, render_end at most once. It preserves the outer block context
// across render_item calls the same way the original implementation pins
// a handlebars-rust BlockContext across suspension points — here, by
// simply keeping the *scope value alive on the struct between calls
// (Go's GC plays the role the Rust implementation needs an explicit
// lifetime/ownership strategy for, per spec.md §9).
type Renderer struct {
	split *Split
	eval  *evaluator

	state        rendererState
	outer        *scope
	rowIndex     int
	afterWritten bool
}

// NewRenderer constructs a Renderer over split, evaluating with the given
// helper table.
func NewRenderer(split *Split, helpers map[string]Helper) *Renderer {
	return &Renderer{split: split, eval: newEvaluator(helpers)}
}

// Start renders before_list with data as the root context and captures the
// resulting block context for later render_item calls.
func (r *Renderer) Start(w io.Writer, data any) error {
	r.outer = newScope(data, nil)
	r.rowIndex = 0
	r.state = stateStarted

	if err := r.eval.eval(w, r.split.BeforeList, r.outer); err != nil {
		return wrapRenderErr(err, r.split.Name)
	}
	return nil
}

// Item renders one list_content pass with data as the item's base value
// and row_index bound to the current counter. It is a silent no-op unless
// Start has already run. On failure the outer scope is left exactly as it
// was before the call (there is nothing transient to roll back: the outer
// scope is never mutated by a failed item, only read).
func (r *Renderer) Item(w io.Writer, data any) error {
	if r.state != stateStarted {
		return nil
	}

	inner := newScope(data, r.outer).withLocal("row_index", r.rowIndex)

	if err := r.eval.eval(w, r.split.ListContent, inner); err != nil {
		return wrapRenderErr(err, r.split.Name)
	}

	r.rowIndex++
	return nil
}

// End renders after_list, if Start ran and EndInline hasn't already
// written it, and transitions to Ended. Calling End more than once, or
// before Start, is a no-op.
func (r *Renderer) End(w io.Writer) error {
	if r.state == stateEnded {
		return nil
	}
	if r.state != stateStarted {
		r.state = stateEnded
		return nil
	}
	if r.afterWritten {
		r.state = stateEnded
		return nil
	}

	err := r.eval.eval(w, r.split.AfterList, r.outer)
	r.state = stateEnded
	if err != nil {
		return wrapRenderErr(err, r.split.Name)
	}
	return nil
}

// EndInline writes after_list without transitioning out of Started: it is
// used only by error recovery (spec.md §4.5's handle_error), which must
// visually close a component's output around an inline error block while
// keeping its block context and row_index alive for the rows that follow,
// per "its renderer object is preserved across the error so its block
// context and row_index survive." A later real End() will not re-render
// after_list, so the normal one-render_end-per-component invariant still
// holds from the sink's point of view.
func (r *Renderer) EndInline(w io.Writer) error {
	if r.state != stateStarted || r.afterWritten {
		return nil
	}
	r.afterWritten = true
	if err := r.eval.eval(w, r.split.AfterList, r.outer); err != nil {
		return wrapRenderErr(err, r.split.Name)
	}
	return nil
}

// RowIndex reports the next row_index Item will bind, for callers that
// need to inspect progress (tests, mainly).
func (r *Renderer) RowIndex() int {
	return r.rowIndex
}

// wrapRenderErr tags cause with ErrCodeRender, unless it is already a
// SinkWriteError — a sink write failure is not a template evaluation bug
// and must reach render.Context undisguised so it can be propagated
// instead of recovered (spec.md §7).
func wrapRenderErr(cause error, templateName string) error {
	var sinkErr *SinkWriteError
	if errors.As(cause, &sinkErr) {
		return cause
	}
	return cuserr.WrapStdError(cause, ErrCodeRender, "template render failed").
		WithMetadata(MetaKeyTemplateName, templateName)
}
