// Package nginx manipulates the reverse proxy configuration through a small
// structured model instead of text substitution: the config is parsed into
// directives, mutated, and serialized deterministically.
package nginx

import (
	"fmt"
	"strings"
)

// Directive is one node of an nginx config: a simple directive, a block
// directive, a commented-out directive, or a free-text comment.
type Directive struct {
	Name      string
	Args      []string
	Block     []*Directive
	HasBlock  bool
	Commented bool   // parsed from a "# name args;" line
	Comment   string // free-text comment, Name is empty
}

// Config is a parsed nginx configuration file.
type Config struct {
	Directives []*Directive
}

// Parse reads an nginx config into the structured model. Comment lines that
// look like disabled directives are kept as Commented directives so they
// can be re-enabled structurally.
func Parse(data []byte) (*Config, error) {
	p := &parser{tokens: tokenize(string(data))}
	directives, err := p.parseBlock(true)
	if err != nil {
		return nil, err
	}
	return &Config{Directives: directives}, nil
}

// Serialize renders the config with stable four-space indentation.
func (c *Config) Serialize() []byte {
	var b strings.Builder
	serialize(&b, c.Directives, 0)
	return []byte(b.String())
}

// Servers returns every server block, searching nested blocks such as http.
func (c *Config) Servers() []*Directive {
	var servers []*Directive
	var walk func(ds []*Directive)
	walk = func(ds []*Directive) {
		for _, d := range ds {
			if d.HasBlock {
				if d.Name == "server" {
					servers = append(servers, d)
				}
				walk(d.Block)
			}
		}
	}
	walk(c.Directives)
	return servers
}

func serialize(b *strings.Builder, directives []*Directive, depth int) {
	indent := strings.Repeat("    ", depth)
	for _, d := range directives {
		switch {
		case d.Name == "" && d.Comment != "":
			b.WriteString(indent)
			b.WriteString("# ")
			b.WriteString(d.Comment)
			b.WriteByte('\n')
		case d.HasBlock:
			b.WriteString(indent)
			b.WriteString(d.Name)
			for _, a := range d.Args {
				b.WriteByte(' ')
				b.WriteString(a)
			}
			b.WriteString(" {\n")
			serialize(b, d.Block, depth+1)
			b.WriteString(indent)
			b.WriteString("}\n")
		default:
			b.WriteString(indent)
			if d.Commented {
				b.WriteString("# ")
			}
			b.WriteString(d.Name)
			for _, a := range d.Args {
				b.WriteByte(' ')
				b.WriteString(a)
			}
			b.WriteString(";\n")
		}
	}
}

type token struct {
	kind string // word, semi, open, close, comment
	text string
}

func tokenize(src string) []token {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '#':
			end := strings.IndexByte(src[i:], '\n')
			if end == -1 {
				end = len(src) - i
			}
			tokens = append(tokens, token{kind: "comment", text: strings.TrimSpace(src[i+1 : i+end])})
			i += end
		case c == ';':
			tokens = append(tokens, token{kind: "semi"})
			i++
		case c == '{':
			tokens = append(tokens, token{kind: "open"})
			i++
		case c == '}':
			tokens = append(tokens, token{kind: "close"})
			i++
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				j = len(src) - 1
			}
			tokens = append(tokens, token{kind: "word", text: src[i : j+1]})
			i = j + 1
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\n\r;{}#", rune(src[j])) {
				j++
			}
			tokens = append(tokens, token{kind: "word", text: src[i:j]})
			i = j
		}
	}
	return tokens
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) parseBlock(top bool) ([]*Directive, error) {
	var directives []*Directive
	var words []string

	for p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		switch t.kind {
		case "comment":
			if len(words) > 0 {
				return nil, fmt.Errorf("comment inside directive near %q", strings.Join(words, " "))
			}
			directives = append(directives, commentDirective(t.text))
			p.pos++
		case "word":
			words = append(words, t.text)
			p.pos++
		case "semi":
			if len(words) == 0 {
				p.pos++
				continue
			}
			directives = append(directives, &Directive{Name: words[0], Args: words[1:]})
			words = nil
			p.pos++
		case "open":
			if len(words) == 0 {
				return nil, fmt.Errorf("unexpected '{'")
			}
			p.pos++
			block, err := p.parseBlock(false)
			if err != nil {
				return nil, err
			}
			directives = append(directives, &Directive{
				Name:     words[0],
				Args:     words[1:],
				Block:    block,
				HasBlock: true,
			})
			words = nil
		case "close":
			if top {
				return nil, fmt.Errorf("unexpected '}'")
			}
			if len(words) > 0 {
				return nil, fmt.Errorf("unterminated directive %q", strings.Join(words, " "))
			}
			p.pos++
			return directives, nil
		}
	}

	if !top {
		return nil, fmt.Errorf("missing '}'")
	}
	if len(words) > 0 {
		return nil, fmt.Errorf("unterminated directive %q", strings.Join(words, " "))
	}
	return directives, nil
}

// commentDirective turns a comment into a Commented directive when its text
// is a disabled directive ("auth_basic ...;"), and a plain comment otherwise.
func commentDirective(text string) *Directive {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, ";") && !strings.ContainsAny(trimmed, "{}") {
		fields := splitDirective(strings.TrimSuffix(trimmed, ";"))
		if len(fields) > 0 && isDirectiveName(fields[0]) {
			return &Directive{Name: fields[0], Args: fields[1:], Commented: true}
		}
	}
	return &Directive{Comment: text}
}

// splitDirective splits a directive line into fields, keeping quoted
// arguments intact.
func splitDirective(s string) []string {
	var fields []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

func isDirectiveName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return len(s) > 0
}
