// Package rowpage streams the rows of a database query into an HTML
// document via a component-oriented templating engine, per spec.md. The
// core state machine lives in internal/template (split-template
// compiler/renderer) and render (the row dispatcher); this file is the
// small public facade over them, shaped like the teacher's own
// Engine/New/Render entry points.
package rowpage

import (
	"io"
	"io/fs"

	"go.uber.org/zap"

	"github.com/sqlview/rowpage/internal/registry"
	"github.com/sqlview/rowpage/internal/row"
	"github.com/sqlview/rowpage/render"
)

// RowEvent is the stream item spec.md §6 describes: a Row, a QueryEnd
// marker, or an Error.
type RowEvent struct {
	Row      *row.Row
	QueryEnd bool
	Err      error
}

// Engine owns the process-wide template registry. Build one at startup
// with New, then call NewResponse per incoming HTTP response.
type Engine struct {
	reg *registry.Registry
	log *zap.Logger
}

// Options configures an Engine.
type Options struct {
	// TemplatesFS and TemplatesDir locate a directory of *.tmpl files to
	// load in addition to the built-in shell/error/default components.
	// Both may be left zero to run with only the built-ins registered.
	TemplatesFS  fs.FS
	TemplatesDir string

	// Logger receives Warn-level diagnostics during startup (skipped
	// template files, templates with more than one top-level each_row) and
	// Warn/Error-level diagnostics during rendering. A nop
	// logger is used if nil.
	Logger *zap.Logger
}

// New builds an Engine: registers the built-in shell/error/default
// components (fatal on failure, per spec.md §4.2) and then, if configured,
// walks Options.TemplatesDir for additional *.tmpl components (failures
// there are logged and skipped, never fatal).
func New(opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	reg := registry.New(log)
	if err := reg.RegisterBuiltins(); err != nil {
		return nil, err
	}

	if opts.TemplatesFS != nil && opts.TemplatesDir != "" {
		if err := reg.RegisterDirectory(opts.TemplatesFS, opts.TemplatesDir); err != nil {
			log.Warn("some templates in the templates directory were skipped", zap.Error(err))
		}
	}

	return &Engine{reg: reg, log: log}, nil
}

// RegisterComponent registers (or overrides) a single named component,
// mirroring the teacher's RegisterComponent entry point one level up from
// a raw struct registration: here the "component" is a template string
// keyed by name rather than a Go type.
func (e *Engine) RegisterComponent(name, text string) error {
	return e.reg.Register(name, text)
}

// NewResponse creates a render.Context writing to sink, ready to consume a
// stream of row events for one HTTP response. Callers must call Close
// (directly, or via defer) on every exit path.
func (e *Engine) NewResponse(sink io.Writer) (*render.Context, error) {
	return render.New(sink, e.reg, e.log)
}

// Drive consumes events from a channel until it closes, dispatching each
// to ctx and returning the first error ctx propagates: a Sink I/O error,
// or a failure of the shell template itself to start (all other error
// kinds are recovered inline per spec.md §7). Close is always called on
// ctx before returning.
func Drive(ctx *render.Context, events <-chan RowEvent) error {
	defer ctx.Close()

	for ev := range events {
		switch {
		case ev.Err != nil:
			if err := ctx.HandleError(ev.Err); err != nil {
				return err
			}
		case ev.QueryEnd:
			ctx.FinishQuery()
		default:
			if err := ctx.HandleRow(ev.Row); err != nil {
				return err
			}
		}
	}
	return nil
}
