package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlview/rowpage/internal/registry"
	"github.com/sqlview/rowpage/internal/row"
)

// newTestContext always overrides shell and default, even with the empty
// string, so scenario tests (whose worked examples specify an exactly
// empty shell) get exactly that rather than the production shell
// boilerplate RegisterBuiltins installs.
func newTestContext(t *testing.T, shell, defaultTmpl string, extra map[string]string) (*Context, *bytes.Buffer) {
	t.Helper()

	reg := registry.New(nil)
	require.NoError(t, reg.RegisterBuiltins())
	require.NoError(t, reg.Register(registry.Shell, shell))
	require.NoError(t, reg.Register(registry.Default, defaultTmpl))
	for name, text := range extra {
		require.NoError(t, reg.Register(name, text))
	}

	var buf bytes.Buffer
	ctx, err := New(&buf, reg, nil)
	require.NoError(t, err)
	return ctx, &buf
}

func rowWith(fields map[string]any) *row.Row {
	r := row.New()
	for k, v := range fields {
		r.Set(k, v)
	}
	return r
}

// failingWriter fails every write once allowed successful writes have
// gone through, for constructing a deterministic Sink I/O failure.
type failingWriter struct {
	allowed int
	written int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written >= w.allowed {
		return 0, errors.New("broken pipe")
	}
	w.written++
	return len(p), nil
}

// TestSinkIOFailurePropagatesFatal checks that a genuine write failure to
// the sink surfaces as a fatal, propagated error (spec.md §7's "Sink I/O
// ... is not recoverable: the caller must tear the context down") instead
// of being swallowed and recovered through the error component the way a
// template evaluation bug is.
func TestSinkIOFailurePropagatesFatal(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterBuiltins())
	require.NoError(t, reg.Register(registry.Shell, ""))
	require.NoError(t, reg.Register(registry.Default, "{{#each_row}}[{{x}}]{{/each_row}}"))

	ctx, err := New(&failingWriter{allowed: 0}, reg, nil)
	require.NoError(t, err)

	err = ctx.HandleRow(rowWith(map[string]any{"x": int64(1)}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "sink write failed")
}

// TestRenderBugStillRecoveredWhenSinkIsHealthy checks that a genuine
// template evaluation failure (as opposed to a sink write failure) is
// still routed through the error component and does not abort rendering,
// even though both kinds of failure can originate from the same
// Renderer.Item call site.
func TestRenderBugStillRecoveredWhenSinkIsHealthy(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", map[string]string{
		"broken":       "{{#each_row}}{{nosuchhelper x}}{{/each_row}}",
		registry.Error: "<e>{{description}}</e>",
	})

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "broken", "x": int64(1)})))
	ctx.Close()

	require.Contains(t, buf.String(), "<e>")
}

// TestS2ImplicitDefaultComponent reproduces spec.md §8 scenario S2.
func TestS2ImplicitDefaultComponent(t *testing.T) {
	ctx, buf := newTestContext(t, "{{#each_row}}{{/each_row}}", "{{#each_row}}[{{x}}]{{/each_row}}", nil)

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"x": int64(1)})))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"x": int64(2)})))
	ctx.Close()

	require.Equal(t, "[1][2]", buf.String())
}

// TestS3ComponentSwitch reproduces spec.md §8 scenario S3.
func TestS3ComponentSwitch(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", map[string]string{
		"A": "A{{#each_row}}({{x}}){{/each_row}}a",
		"B": "B{{#each_row}}[{{x}}]{{/each_row}}b",
	})

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(1)})))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(2)})))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "B", "x": int64(3)})))
	ctx.Close()

	require.Equal(t, "A(1)(2)aB[3]b", buf.String())
}

// TestS4InlineError reproduces spec.md §8 scenario S4.
func TestS4InlineError(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", map[string]string{
		"A":     "A{{#each_row}}({{x}}){{/each_row}}a",
		registry.Error: "<err>{{description}}</err>",
	})

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(1)})))
	require.NoError(t, ctx.HandleError(errors.New("boom")))
	ctx.Close()

	require.Contains(t, buf.String(), "A(1)a<err>boom</err>")
}

// TestS5DynamicExpansion reproduces spec.md §8 scenario S5.
func TestS5DynamicExpansion(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", map[string]string{
		"A": "A{{#each_row}}({{x}}){{/each_row}}a",
	})

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(1)})))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{
		"component":  "dynamic",
		"properties": `[{"component":"A","x":9}]`,
	})))
	ctx.Close()

	directCtx, directBuf := newTestContext(t, "", "", map[string]string{
		"A": "A{{#each_row}}({{x}}){{/each_row}}a",
	})
	require.NoError(t, directCtx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(1)})))
	require.NoError(t, directCtx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(9)})))
	directCtx.Close()

	require.Equal(t, directBuf.String(), buf.String())
}

// TestS6UnknownComponent reproduces spec.md §8 scenario S6.
func TestS6UnknownComponent(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", nil)

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "nope"})))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"x": int64(1)})))
	ctx.Close()

	require.Contains(t, buf.String(), "nope")
}

// TestInvariant6ShellAlwaysClosesExactlyOnce checks that close() finalizes
// the shell exactly once regardless of how many rows were handled.
func TestInvariant6ShellAlwaysClosesExactlyOnce(t *testing.T) {
	ctx, buf := newTestContext(t, "<shell>{{#each_row}}{{/each_row}}</shell>", "{{#each_row}}.{{/each_row}}", nil)

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"x": int64(1)})))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"x": int64(2)})))
	ctx.Close()
	ctx.Close() // idempotent: a second Close must not re-emit the shell wrapper

	require.Equal(t, 1, strings.Count(buf.String(), "<shell>"))
	require.Equal(t, 1, strings.Count(buf.String(), "</shell>"))
}

// TestInvariant7ErrorNonFatality checks that an error between two rows of
// the same component still yields both rows' output plus the error block,
// with rendering completing successfully.
func TestInvariant7ErrorNonFatality(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", map[string]string{
		"A":            "{{#each_row}}({{x}}){{/each_row}}",
		registry.Error: "<e>{{description}}</e>",
	})

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(1)})))
	require.NoError(t, ctx.HandleError(errors.New("boom")))
	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(2)})))
	ctx.Close()

	out := buf.String()
	require.Contains(t, out, "(1)")
	require.Contains(t, out, "<e>boom</e>")
	require.Contains(t, out, "(2)")
}

// TestInvariant8RecursionBound checks that a dynamic row nesting
// self-referential dynamic rows past the 256 limit fails with
// RecursionLimit rather than expanding forever (spec.md §8 invariant 8).
func TestInvariant8RecursionBound(t *testing.T) {
	ctx, buf := newTestContext(t, "", "", map[string]string{
		"A":            "{{#each_row}}({{x}}){{/each_row}}",
		registry.Error: "<e>{{description}}</e>",
	})

	require.NoError(t, ctx.HandleRow(rowWith(map[string]any{"component": "A", "x": int64(0)})))

	dynRow := rowWith(map[string]any{"component": "dynamic", "properties": makeNestedDynamic(257)})
	require.NoError(t, ctx.HandleRow(dynRow))
	ctx.Close()

	require.Contains(t, buf.String(), "recursion")
	require.Equal(t, 0, ctx.recursionDepth)
}

// makeNestedDynamic builds a properties payload that nests "dynamic" rows
// depth levels deep, each one layer re-injecting the next via expandDynamic.
func makeNestedDynamic(depth int) []any {
	inner := map[string]any{"component": "A", "x": int64(depth)}
	for i := 0; i < depth; i++ {
		inner = map[string]any{"component": "dynamic", "properties": []any{inner}}
	}
	props, _ := inner["properties"].([]any)
	return props
}

