// Package render implements the outermost state machine described in
// spec.md §4.5: the render context / row dispatcher. It owns the byte
// sink, the always-open shell renderer, and at most one open component
// renderer, and interprets each incoming row as a command that opens,
// continues, or closes a component.
package render

import (
	"io"

	"go.uber.org/zap"

	"github.com/sqlview/rowpage/internal/registry"
	"github.com/sqlview/rowpage/internal/row"
	"github.com/sqlview/rowpage/internal/template"
)

const (
	componentDynamic = "dynamic"
	componentHead    = "head"
)

// Context is a per-response render context. It is owned by exactly one
// caller/goroutine for its whole lifetime and performs no internal
// locking, per spec.md §5.
type Context struct {
	sink io.Writer
	reg  *registry.Registry
	log  *zap.Logger

	shell   *template.Renderer
	current *template.Renderer
	curName string

	recursionDepth   int
	currentStatement int
	inErrorHandler   bool
	shellStartedFlag bool
}

// New creates a render Context writing to sink, backed by reg. The shell
// renderer is created Fresh; it is not started until the first row
// arrives (spec.md §4.5's "it stays Fresh until the first row arrives").
func New(sink io.Writer, reg *registry.Registry, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}

	shellSplit, err := reg.Get(registry.Shell)
	if err != nil {
		return nil, err
	}

	return &Context{
		sink:             sink,
		reg:              reg,
		log:              log,
		shell:            template.NewRenderer(shellSplit, reg.Helpers()),
		currentStatement: 1,
	}, nil
}

// HandleRow is the central state machine of spec.md §4.5's handle_row.
func (c *Context) HandleRow(r *row.Row) error {
	newName, hasNew := r.Component()
	curName := c.curName
	hasCur := c.current != nil

	switch {
	case !hasCur && hasNew && newName == componentHead:
		return c.openSequence(r, "", r)
	case !hasCur && !hasNew:
		return c.openSequence(r, "", r)
	case !hasCur && hasNew:
		return c.openSequence(nil, newName, r)
	case hasCur && hasNew && newName == componentDynamic:
		return c.expandDynamic(r)
	case hasCur && hasNew:
		if newName == curName {
			return c.item(r)
		}
		return c.openSequence(nil, newName, r)
	case hasCur && !hasNew:
		return c.item(r)
	}

	return nil
}

// openSequence renders shell.render_start(shellData) if the shell hasn't
// started yet, closes any current component, and opens target (data=data),
// or the default component when target is empty.
func (c *Context) openSequence(shellData any, target string, data any) error {
	if !c.shellStarted() {
		if err := c.shellStart(shellData); err != nil {
			return err
		}
	}
	if target == "" {
		return c.openComponent(componentDefaultName(), data)
	}
	return c.openComponent(target, data)
}

func componentDefaultName() string { return registry.Default }

func (c *Context) shellStarted() bool {
	return c.shellStartedFlag
}

// shellStart starts the shell renderer, distinguishing a genuine sink
// write failure (fatal, propagated per spec.md §7) from a template
// evaluation bug in the shell itself (nothing to recover into here, since
// the shell cannot open a second time, but still tagged correctly rather
// than misreported as Sink I/O).
func (c *Context) shellStart(data any) error {
	if err := c.shell.Start(c.sink, data); err != nil {
		if cause, ok := asSinkError(err); ok {
			return newSinkIOError(cause)
		}
		return err
	}
	c.shellStartedFlag = true
	return nil
}

// openComponent closes any current component, looks up name, and starts a
// fresh renderer over it with data. The opening row doubles as that
// renderer's first item (ground truth: spec.md §8 S2/S3's worked examples
// only balance if the row that causes an "open" is itself rendered, not
// merely used to prime before_list) — see DESIGN.md.
func (c *Context) openComponent(name string, data any) error {
	if err := c.closeCurrent(); err != nil {
		return err
	}

	split, err := c.reg.Get(name)
	if err != nil {
		return c.HandleError(err)
	}

	r := template.NewRenderer(split, c.reg.Helpers())
	if err := r.Start(c.sink, data); err != nil {
		if cause, ok := asSinkError(err); ok {
			return newSinkIOError(cause)
		}
		return c.HandleError(err)
	}

	c.current = r
	c.curName = name

	return c.renderItemOnCurrent(data)
}

// closeCurrent ends the current component renderer, if any. A genuine
// sink failure propagates; a template bug in the closing after_list zone
// is recovered through the error component like any other Render failure.
func (c *Context) closeCurrent() error {
	if c.current == nil {
		return nil
	}
	err := c.current.End(c.sink)
	c.current = nil
	c.curName = ""
	if err == nil {
		return nil
	}
	if cause, ok := asSinkError(err); ok {
		return newSinkIOError(cause)
	}
	return c.HandleError(err)
}

// item feeds data into the current component's render_item.
func (c *Context) item(data any) error {
	if c.current == nil {
		return nil
	}
	return c.renderItemOnCurrent(data)
}

// renderItemOnCurrent renders one item on the current component and then
// advances the shell's own per-item zone in lockstep (spec.md §4.5: "After
// any successful render_item on the active component, also call
// shell.render_item(null)"), resolved as "once per successfully rendered
// component item" rather than once per component switch (open question 3).
// A sink write failure from either render call propagates as Sink I/O;
// a template evaluation bug in either is recovered through HandleError.
func (c *Context) renderItemOnCurrent(data any) error {
	if err := c.current.Item(c.sink, data); err != nil {
		if cause, ok := asSinkError(err); ok {
			return newSinkIOError(cause)
		}
		return c.HandleError(err)
	}
	if err := c.shell.Item(c.sink, nil); err != nil {
		if cause, ok := asSinkError(err); ok {
			return newSinkIOError(cause)
		}
		return c.HandleError(err)
	}
	return nil
}

// expandDynamic implements spec.md §4.5's dynamic-expansion rule.
func (c *Context) expandDynamic(r *row.Row) error {
	propsRaw, _ := r.Get("properties")

	if c.recursionDepth >= maxDynamicDepth {
		return c.HandleError(newRecursionLimitError(c.recursionDepth))
	}

	rows, err := expandDynamicProperties(propsRaw)
	if err != nil {
		return c.HandleError(err)
	}

	c.recursionDepth++
	defer func() { c.recursionDepth-- }()

	for _, inner := range rows {
		if err := c.HandleRow(inner); err != nil {
			return err
		}
	}
	return nil
}

// FinishQuery implements finish_query(): advances the statement counter
// without closing any open component (components may span statements).
func (c *Context) FinishQuery() {
	c.currentStatement++
}

// HandleError implements handle_error: it closes/opens as needed, routes
// one item through the error component, and restores whatever component
// was open beforehand so its block context and row_index survive.
func (c *Context) HandleError(cause error) error {
	if c.inErrorHandler {
		c.log.Error("secondary error while handling an error; discarding", zap.Error(cause))
		return nil
	}
	c.inErrorHandler = true
	defer func() { c.inErrorHandler = false }()

	savedCurrent := c.current
	savedName := c.curName

	if savedCurrent != nil {
		// EndInline, not End: the component's renderer object must survive
		// with its block context and row_index intact so rows after the
		// error continue the same run, per spec.md §4.5 step 5.
		if err := savedCurrent.EndInline(c.sink); err != nil {
			if sinkCause, ok := asSinkError(err); ok {
				return newSinkIOError(sinkCause)
			}
			c.log.Warn("error ending component while handling an error", zap.Error(err))
		}
	} else if !c.shellStarted() {
		if err := c.shellStart(nil); err != nil {
			return err
		}
	}

	errSplit, lookupErr := c.reg.Get(registry.Error)
	if lookupErr != nil {
		c.log.Error("error component missing from registry", zap.Error(lookupErr))
		c.current = savedCurrent
		c.curName = savedName
		return nil
	}

	errData := map[string]any{
		"query_number": c.currentStatement,
		"description":  cause.Error(),
		"backtrace":    causeChain(cause),
	}

	// Sink I/O while rendering the error block itself is just as fatal as
	// anywhere else (spec.md §7) — it must not be swallowed as a mere
	// secondary-error log line the way a genuine Render bug in the error
	// template is.
	errRenderer := template.NewRenderer(errSplit, c.reg.Helpers())
	if err := errRenderer.Start(c.sink, errData); err != nil {
		if sinkCause, ok := asSinkError(err); ok {
			return newSinkIOError(sinkCause)
		}
		c.log.Error("error component failed to start", zap.Error(err))
	} else if err := errRenderer.Item(c.sink, errData); err != nil {
		if sinkCause, ok := asSinkError(err); ok {
			return newSinkIOError(sinkCause)
		}
		c.log.Error("error component failed to render item", zap.Error(err))
	} else if err := c.shell.Item(c.sink, nil); err != nil {
		// Matches original_source/src/render.rs's handle_error, which
		// routes the error item through the same render_current_template_
		// with_data helper the row path uses and so always advances the
		// shell's per-item zone alongside it.
		if sinkCause, ok := asSinkError(err); ok {
			return newSinkIOError(sinkCause)
		}
		c.log.Error("shell failed to advance its per-item zone for the error block", zap.Error(err))
	}
	if err := errRenderer.End(c.sink); err != nil {
		if sinkCause, ok := asSinkError(err); ok {
			return newSinkIOError(sinkCause)
		}
		c.log.Error("error component failed to end", zap.Error(err))
	}

	c.current = savedCurrent
	c.curName = savedName
	return nil
}

// Close finalizes the context: ends any open component, then the shell.
// Errors at this stage are logged only, never returned, matching spec.md
// §4.5's "scoped acquisition with guaranteed release."
func (c *Context) Close() {
	if c.current != nil {
		if err := c.current.End(c.sink); err != nil {
			c.log.Warn("error closing component at context teardown", zap.Error(err))
		}
		c.current = nil
	}
	if c.shellStarted() {
		if err := c.shell.End(c.sink); err != nil {
			c.log.Warn("error closing shell at context teardown", zap.Error(err))
		}
	}
}

func causeChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		next := unwrapper.Unwrap()
		if next == err {
			break
		}
		err = next
	}
	return chain
}
