package template

import (
	"fmt"
	"strings"
)

// NodeType identifies which variant of the grammar a Node represents.
type NodeType int

const (
	// NodeText is a literal run of text copied to the sink unchanged.
	NodeText NodeType = iota
	// NodeVariable is a `{{path}}` reference, rendered as its stringified value.
	NodeVariable
	// NodeHelper is a `{{helper arg1 arg2}}` call whose result is rendered.
	NodeHelper
	// NodeHelperBlock is a `{{#helper}}...{{/helper}}` block with a nested body.
	NodeHelperBlock
)

// Path is a variable reference: a number of leading "../" hops followed by
// a dotted field path, e.g. "../../user.name" becomes {Parents: 2, Segments:
// ["user", "name"]}.
type Path struct {
	Parents  int
	Segments []string
}

func (p Path) String() string {
	var b strings.Builder
	for i := 0; i < p.Parents; i++ {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(p.Segments, "."))
	return b.String()
}

// Node is a single element of a parsed template. The core treats it opaquely
// except when the splitter is looking for the each_row repetition marker.
type Node struct {
	Type NodeType

	// Text holds the literal content for NodeText nodes.
	Text string

	// Path holds the variable reference for NodeVariable nodes. Helper
	// arguments are carried in Args instead.
	Path Path

	// HelperName names the helper for NodeHelper/NodeHelperBlock nodes.
	HelperName string

	// Args are the argument expressions passed to a helper call.
	Args []Node

	// Body holds the nested element list for NodeHelperBlock nodes.
	Body []Node
}

func (n Node) String() string {
	switch n.Type {
	case NodeText:
		return fmt.Sprintf("Text(%q)", n.Text)
	case NodeVariable:
		return fmt.Sprintf("Variable(%s)", n.Path)
	case NodeHelper:
		return fmt.Sprintf("Helper(%s, args=%d)", n.HelperName, len(n.Args))
	case NodeHelperBlock:
		return fmt.Sprintf("HelperBlock(%s, body=%d)", n.HelperName, len(n.Body))
	default:
		return "Node(unknown)"
	}
}

// eachRowMarker is the fixed helper-block name that delimits the per-item
// repetition zone of a component template.
const eachRowMarker = "each_row"
