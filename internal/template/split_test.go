package template

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileSplitsAroundEachRow(t *testing.T) {
	split, err := Compile("s1", "Hello {{name}} !{{#each_row}} ({{x}} : {{../name}}) {{/each_row}}Goodbye {{name}}", nil)
	require.NoError(t, err)
	require.True(t, split.HasList)
	require.Equal(t, "s1", split.Name)
}

func TestCompileWithoutEachRowKeepsWholeTemplateAsBeforeList(t *testing.T) {
	split, err := Compile("plain", "just text {{x}}", nil)
	require.NoError(t, err)
	require.False(t, split.HasList)
	require.Empty(t, split.ListContent)
	require.Empty(t, split.AfterList)

	var buf bytes.Buffer
	require.NoError(t, newEvaluator(Builtins()).eval(&buf, split.BeforeList, newScope(map[string]any{"x": "y"}, nil)))
	require.Equal(t, "just text y", buf.String())
}

func TestCompileFirstEachRowWinsWhenMultiplePresent(t *testing.T) {
	split, err := Compile("dup", "a{{#each_row}}1{{/each_row}}b{{#each_row}}2{{/each_row}}c", nil)
	require.NoError(t, err)
	require.True(t, split.HasList)
	require.Len(t, split.ListContent, 1)
	require.Equal(t, "1", split.ListContent[0].Text)
	// the second each_row remains literally inside after_list
	require.Len(t, split.AfterList, 3)
}

// TestS1SplitAlgebra reproduces spec.md §8 scenario S1 exactly.
func TestS1SplitAlgebra(t *testing.T) {
	split, err := Compile("s1", "Hello {{name}} !{{#each_row}} ({{x}} : {{../name}}) {{/each_row}}Goodbye {{name}}", nil)
	require.NoError(t, err)

	r := NewRenderer(split, Builtins())
	var buf bytes.Buffer

	require.NoError(t, r.Start(&buf, map[string]any{"name": "SQL"}))
	require.Equal(t, "Hello SQL !", buf.String())

	require.NoError(t, r.Item(&buf, map[string]any{"x": int64(1)}))
	require.NoError(t, r.Item(&buf, map[string]any{"x": int64(2)}))
	require.NoError(t, r.End(&buf))

	require.Equal(t, "Hello SQL ! (1 : SQL)  (2 : SQL) Goodbye SQL", buf.String())
}

func TestRendererItemIsNoopBeforeStart(t *testing.T) {
	split, err := Compile("s", "{{#each_row}}[{{x}}]{{/each_row}}", nil)
	require.NoError(t, err)

	r := NewRenderer(split, Builtins())
	var buf bytes.Buffer
	require.NoError(t, r.Item(&buf, map[string]any{"x": int64(1)}))
	require.Empty(t, buf.String())
}

func TestRendererRowIndexMonotonicity(t *testing.T) {
	split, err := Compile("s", "{{#each_row}}{{row_index}}{{/each_row}}", nil)
	require.NoError(t, err)

	r := NewRenderer(split, Builtins())
	var buf bytes.Buffer
	require.NoError(t, r.Start(&buf, nil))
	require.NoError(t, r.Item(&buf, nil))
	require.NoError(t, r.Item(&buf, nil))
	require.NoError(t, r.Item(&buf, nil))
	require.NoError(t, r.End(&buf))

	require.Equal(t, "012", buf.String())
}

func TestRendererEndIsIdempotent(t *testing.T) {
	split, err := Compile("s", "before{{#each_row}}x{{/each_row}}after", nil)
	require.NoError(t, err)

	r := NewRenderer(split, Builtins())
	var buf bytes.Buffer
	require.NoError(t, r.Start(&buf, nil))
	require.NoError(t, r.End(&buf))
	firstLen := buf.Len()
	require.NoError(t, r.End(&buf))
	require.Equal(t, firstLen, buf.Len())
}
