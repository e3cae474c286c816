package template

import (
	"fmt"
	"io"

	"github.com/itsatony/go-cuserr"
)

// ErrCodeRender is the stable code attached to node evaluation failures.
const ErrCodeRender = "ROWPAGE_RENDER"

// evaluator walks a node list against a scope chain, writing literal and
// resolved output to w. It is stateless between calls; the Renderer in
// renderer.go is what carries state across render_start/render_item/render_end.
type evaluator struct {
	helpers map[string]Helper
}

func newEvaluator(helpers map[string]Helper) *evaluator {
	return &evaluator{helpers: helpers}
}

func (e *evaluator) eval(w io.Writer, nodes []Node, sc *scope) error {
	for _, n := range nodes {
		if err := e.evalNode(w, n, sc); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) evalNode(w io.Writer, n Node, sc *scope) error {
	switch n.Type {
	case NodeText:
		if _, err := io.WriteString(w, n.Text); err != nil {
			return &SinkWriteError{Cause: err}
		}
		return nil

	case NodeVariable:
		v, _ := sc.resolve(n.Path)
		if _, err := io.WriteString(w, displayString(v)); err != nil {
			return &SinkWriteError{Cause: err}
		}
		return nil

	case NodeHelper:
		v, err := e.callHelper(n, sc)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, displayString(v)); err != nil {
			return &SinkWriteError{Cause: err}
		}
		return nil

	case NodeHelperBlock:
		// A block helper encountered during plain evaluation (i.e. not the
		// outer each_row consumed by the splitter): a later or nested
		// each_row has no rows driving it and renders its body zero times;
		// any other block helper name is reported as unknown.
		return e.evalHelperBlock(w, n, sc)

	default:
		return nil
	}
}

func (e *evaluator) evalHelperBlock(w io.Writer, n Node, sc *scope) error {
	if n.HelperName == eachRowMarker {
		// No rows drive a nested/second each_row; it renders its body zero
		// times, which is indistinguishable from an empty block.
		return nil
	}

	return cuserr.NewNotFoundError("helper", fmt.Sprintf("unknown block helper %q", n.HelperName)).
		WithMetadata("helper", n.HelperName)
}

func (e *evaluator) callHelper(n Node, sc *scope) (any, error) {
	fn, ok := e.helpers[n.HelperName]
	if !ok {
		return nil, cuserr.NewNotFoundError("helper", fmt.Sprintf("unknown helper %q", n.HelperName)).
			WithMetadata("helper", n.HelperName)
	}

	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		switch a.Type {
		case NodeText:
			args[i] = a.Text
		case NodeVariable:
			v, _ := sc.resolve(a.Path)
			args[i] = v
		}
	}

	v, err := fn(args)
	if err != nil {
		return nil, cuserr.WrapStdError(err, ErrCodeRender, "helper failed").
			WithMetadata("helper", n.HelperName)
	}
	return v, nil
}

func displayString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
