package template

import "go.uber.org/zap"

// Split is the immutable triple produced by splitting a compiled template
// around its first top-level each_row marker: {before_list, list_content,
// after_list}. All three share the original template's Name so error
// messages from the engine stay coherent.
type Split struct {
	Name string

	BeforeList []Node
	ListContent []Node
	AfterList  []Node

	// HasList is true when an each_row marker was found; when false,
	// BeforeList is the whole template and ListContent/AfterList are empty.
	HasList bool
}

// Compile parses text into a node list and splits it into a Split. log may
// be nil; when non-nil it receives a Warn line if more than one top-level
// each_row block is present (open question 1: the first wins, the compiler
// does not reject the rest — they remain literal nested repetitions inside
// after_list).
func Compile(name, text string, log *zap.Logger) (*Split, error) {
	p := newParser(name, text)
	nodes, err := p.parseDocument()
	if err != nil {
		return nil, err
	}
	return split(name, nodes, log), nil
}

func split(name string, nodes []Node, log *zap.Logger) *Split {
	idx := -1
	extra := 0
	for i, n := range nodes {
		if n.Type == NodeHelperBlock && n.HelperName == eachRowMarker {
			if idx == -1 {
				idx = i
			} else {
				extra++
			}
		}
	}

	if idx == -1 {
		return &Split{Name: name, BeforeList: nodes}
	}

	if extra > 0 && log != nil {
		log.Warn("template has more than one top-level each_row block; only the first is used as the repetition marker",
			zap.String("template", name),
			zap.Int("extra_each_row_blocks", extra),
		)
	}

	return &Split{
		Name:        name,
		HasList:     true,
		BeforeList:  nodes[:idx],
		ListContent: nodes[idx].Body,
		AfterList:   nodes[idx+1:],
	}
}
