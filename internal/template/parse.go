package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/itsatony/go-cuserr"
)

// parser is a small hand-written recursive-descent scanner over the
// mustache-like grammar described in the template format: `{{path}}`
// variable references, `{{helper arg...}}` helper calls, and
// `{{#helper}}...{{/helper}}` helper blocks. No off-the-shelf templating
// library exposes the low-level, externally-resumable block-context stack
// the renderer needs (see DESIGN.md), so parsing the grammar is also
// hand-rolled, in the spirit of the teacher's own rune-cursor scanner.
type parser struct {
	name    string
	content []rune
	pos     int
}

func newParser(name, text string) *parser {
	return &parser{name: name, content: []rune(text)}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.content)
}

func (p *parser) peekString(s string) bool {
	r := []rune(s)
	if p.pos+len(r) > len(p.content) {
		return false
	}
	for i, c := range r {
		if p.content[p.pos+i] != c {
			return false
		}
	}
	return true
}

// parseDocument parses a full node list until EOF, erroring if a block
// close is encountered with nothing open.
func (p *parser) parseDocument() ([]Node, error) {
	nodes, closer, err := p.parseUntilClose()
	if err != nil {
		return nil, err
	}
	if closer != "" {
		return nil, p.errorf("unexpected {{/%s}} with no matching open block", closer)
	}
	return nodes, nil
}

// parseUntilClose parses nodes until EOF or a top-level `{{/name}}` close
// tag, which is consumed and returned as closer.
func (p *parser) parseUntilClose() ([]Node, string, error) {
	var nodes []Node
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			nodes = append(nodes, Node{Type: NodeText, Text: text.String()})
			text.Reset()
		}
	}

	for !p.eof() {
		if p.peekString("{{") {
			flushText()

			closer, isClose, node, isNode, err := p.parseTag()
			if err != nil {
				return nil, "", err
			}
			if isClose {
				return nodes, closer, nil
			}
			if isNode {
				nodes = append(nodes, node)
			}
			continue
		}

		text.WriteRune(p.content[p.pos])
		p.pos++
	}

	flushText()
	return nodes, "", nil
}

// parseTag consumes one `{{...}}` tag starting at p.pos. It returns either
// a close-tag name (isClose=true), or a parsed Node (isNode=true).
func (p *parser) parseTag() (closer string, isClose bool, node Node, isNode bool, err error) {
	p.pos += 2 // consume "{{"

	end := p.indexOf("}}")
	if end < 0 {
		return "", false, Node{}, false, p.errorf("unterminated tag, expected }}")
	}

	inner := strings.TrimSpace(string(p.content[p.pos:end]))
	p.pos = end + 2

	if inner == "" {
		return "", false, Node{}, false, p.errorf("empty tag {{}}")
	}

	switch {
	case strings.HasPrefix(inner, "/"):
		return strings.TrimSpace(inner[1:]), true, Node{}, false, nil

	case strings.HasPrefix(inner, "#"):
		header := strings.TrimSpace(inner[1:])
		tokens := splitTokens(header)
		if len(tokens) == 0 {
			return "", false, Node{}, false, p.errorf("empty block helper name")
		}
		helperName := tokens[0]
		args, err := parseArgs(tokens[1:])
		if err != nil {
			return "", false, Node{}, false, p.errorf("%s", err.Error())
		}

		body, closed, err := p.parseUntilClose()
		if err != nil {
			return "", false, Node{}, false, err
		}
		if closed != helperName {
			return "", false, Node{}, false, p.errorf("mismatched block: opened %q, closed %q", helperName, closed)
		}

		return "", false, Node{Type: NodeHelperBlock, HelperName: helperName, Body: body}, true, nil

	default:
		tokens := splitTokens(inner)
		if len(tokens) == 1 {
			path, err := parsePath(tokens[0])
			if err != nil {
				return "", false, Node{}, false, p.errorf("%s", err.Error())
			}
			return "", false, Node{Type: NodeVariable, Path: path}, true, nil
		}

		helperName := tokens[0]
		args, err := parseArgs(tokens[1:])
		if err != nil {
			return "", false, Node{}, false, p.errorf("%s", err.Error())
		}
		return "", false, Node{Type: NodeHelper, HelperName: helperName, Args: args}, true, nil
	}
}

func (p *parser) indexOf(s string) int {
	r := []rune(s)
	for i := p.pos; i+len(r) <= len(p.content); i++ {
		match := true
		for j, c := range r {
			if p.content[i+j] != c {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func (p *parser) errorf(format string, args ...any) error {
	return cuserr.NewValidationError(
		ErrCodeTemplateCompile,
		fmt.Sprintf("template %s: %s", p.name, fmt.Sprintf(format, args...)),
	)
}

// splitTokens splits a tag's inner content on whitespace, honoring
// double-quoted string literals as single tokens.
func splitTokens(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// parseArgs turns argument tokens into Nodes: quoted strings and numeric/
// boolean literals become NodeText literals carrying their raw form, bare
// identifiers become NodeVariable path references.
func parseArgs(tokens []string) ([]Node, error) {
	args := make([]Node, 0, len(tokens))
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "\"") && strings.HasSuffix(tok, "\"") && len(tok) >= 2 {
			args = append(args, Node{Type: NodeText, Text: tok[1 : len(tok)-1]})
			continue
		}
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			args = append(args, Node{Type: NodeText, Text: tok})
			continue
		}
		if tok == "true" || tok == "false" {
			args = append(args, Node{Type: NodeText, Text: tok})
			continue
		}
		path, err := parsePath(tok)
		if err != nil {
			return nil, err
		}
		args = append(args, Node{Type: NodeVariable, Path: path})
	}
	return args, nil
}

func parsePath(tok string) (Path, error) {
	parents := 0
	for strings.HasPrefix(tok, "../") {
		parents++
		tok = tok[3:]
	}
	if tok == "" || tok == "." {
		return Path{Parents: parents}, nil
	}
	return Path{Parents: parents, Segments: strings.Split(tok, ".")}, nil
}
