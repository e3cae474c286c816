// Package registry holds the process-wide, immutable-after-startup named
// collection of component Splits, plus the helper function table every
// template evaluation shares. It is built once and read concurrently by
// every render.Context thereafter, matching spec.md §5's "process-wide,
// constructed once at startup, and thereafter immutable" requirement.
package registry

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/itsatony/go-cuserr"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sqlview/rowpage/internal/template"
)

//go:embed builtins/*.tmpl
var builtinFS embed.FS

const templateExtension = ".tmpl"

// Names reserved by spec.md §6 regardless of what a templates directory
// provides; register_builtins always (re)installs these three.
const (
	Shell   = "shell"
	Error   = "error"
	Default = "default"
)

// ErrCodeUnknownComponent is the stable code attached when get() misses.
const ErrCodeUnknownComponent = "ROWPAGE_UNKNOWN_COMPONENT"

// Registry is a mapping from component name to Split, plus the shared
// helper table. Entries are held in a plain Go map, so no registration
// order is kept. Safe for concurrent reads once built; Register*
// calls are expected only during startup, but are still guarded by a
// mutex so a hot-reload caller (not used by the shipped binaries, but a
// reasonable extension point) doesn't race a concurrent lookup.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*template.Split
	helpers   map[string]template.Helper
	log       *zap.Logger
}

// New builds an empty Registry. Call RegisterBuiltins before anything else
// uses it; RegisterDirectory is optional.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		templates: make(map[string]*template.Split),
		helpers:   template.Builtins(),
		log:       log,
	}
}

// Register compiles text and stores it under name, overwriting any prior
// entry of that name. Fails with TemplateCompile if the grammar rejects
// text.
func (r *Registry) Register(name, text string) error {
	split, err := template.Compile(name, text, r.log)
	if err != nil {
		return template.CompileError(name, err)
	}

	r.mu.Lock()
	r.templates[name] = split
	r.mu.Unlock()
	return nil
}

// RegisterBuiltins installs shell, error and default from the embedded
// builtins directory. All three must compile; failure here is fatal, per
// spec.md §4.2.
func (r *Registry) RegisterBuiltins() error {
	for _, name := range []string{Shell, Error, Default} {
		text, err := builtinFS.ReadFile("builtins/" + name + templateExtension)
		if err != nil {
			return fmt.Errorf("missing embedded builtin %q: %w", name, err)
		}
		if err := r.Register(name, string(text)); err != nil {
			return fmt.Errorf("builtin %q failed to compile: %w", name, err)
		}
	}
	return nil
}

// RegisterDirectory walks dir non-recursively (spec.md §4.2: "iterates the
// directory, non-recursively"); for each regular file whose extension is
// .tmpl, the file stem becomes the component name. Unreadable files or
// compile failures are logged at Warn and skipped — they never abort
// startup. Returns an error if dir itself cannot be read; otherwise returns
// the per-file failures combined into one error, or nil if every template
// file loaded.
func (r *Registry) RegisterDirectory(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("could not read template directory %q: %w", dir, err)
	}

	var errs error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if path.Ext(entry.Name()) != templateExtension {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), templateExtension)
		filePath := path.Join(dir, entry.Name())

		text, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			r.log.Warn("skipping unreadable template file", zap.String("path", filePath), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		if err := r.Register(name, string(text)); err != nil {
			r.log.Warn("skipping template that failed to compile", zap.String("path", filePath), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
	}

	return errs
}

// Get returns the named Split or signals UnknownComponent.
func (r *Registry) Get(name string) (*template.Split, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	split, ok := r.templates[name]
	if !ok {
		msg := fmt.Sprintf("unknown component %q", name)
		return nil, cuserr.WrapStdError(fmt.Errorf("%s", msg), ErrCodeUnknownComponent, msg).
			WithMetadata("component", name)
	}
	return split, nil
}

// Helpers returns the shared helper table, for constructing a
// template.Renderer over a looked-up Split.
func (r *Registry) Helpers() map[string]template.Helper {
	return r.helpers
}
