// Package metadata implements the tag-based question encoding embedded in a
// market's question text. A line beginning with "::" opens a top-level block;
// a line beginning with ":::" attaches a sub-tag of inline key:value tokens
// to the open block. The encoding round-trips semantically through
// Parse/Format, though not necessarily byte-identically.
package metadata

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

const (
	blockMarker = "::"
	subMarker   = ":::"
	separator   = ":"

	// textKey collects content lines that carry no key:value separator
	// inside a structured block.
	textKey = "text"
)

// Block is an unrecognized top-level tag preserved for forward
// compatibility. Exactly one of Scalar or Fields is populated.
type Block struct {
	Scalar string
	Fields map[string]string
	Subs   map[string]map[string]string
}

// Metadata is the parsed question encoding. Known tags are strictly typed;
// unknown tags survive untouched in Extra.
type Metadata struct {
	Question string
	Rule     domain.Rule
	Event    string
	Category string
	Picture  string
	RuleSubs map[string]map[string]string
	Extra    map[string]Block
}

// rawBlock accumulates one top-level block during parsing.
type rawBlock struct {
	name  string
	lines []string
	subs  map[string]map[string]string
}

// close collapses the accumulated content per the grammar: a single line
// without a separator is a scalar; anything else becomes a field mapping.
func (b *rawBlock) close() Block {
	out := Block{Subs: b.subs}
	if len(b.lines) == 1 && !strings.Contains(b.lines[0], separator) {
		out.Scalar = b.lines[0]
		return out
	}
	out.Fields = make(map[string]string, len(b.lines))
	for _, line := range b.lines {
		k, v, found := strings.Cut(line, separator)
		if !found {
			if out.Fields[textKey] != "" {
				out.Fields[textKey] += "\n" + line
			} else {
				out.Fields[textKey] = line
			}
			continue
		}
		out.Fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// Parse decodes raw question text. It fails only when a required tag is
// absent or a required rule sub-field is absent or malformed; optional tags
// never cause an error.
func Parse(raw string) (Metadata, error) {
	blocks := map[string]Block{}
	order := []string{}

	var open *rawBlock
	closeOpen := func() {
		if open == nil {
			return
		}
		if _, dup := blocks[open.name]; !dup {
			order = append(order, open.name)
		}
		blocks[open.name] = open.close()
		open = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, subMarker):
			// Sub-tags outside any open block are silently dropped.
			if open == nil {
				continue
			}
			rest := strings.Fields(strings.TrimPrefix(trimmed, subMarker))
			if len(rest) == 0 {
				continue
			}
			name := rest[0]
			kv := make(map[string]string, len(rest)-1)
			for _, tok := range rest[1:] {
				if k, v, found := strings.Cut(tok, separator); found {
					kv[k] = v
				}
			}
			if open.subs == nil {
				open.subs = map[string]map[string]string{}
			}
			open.subs[name] = kv
		case strings.HasPrefix(trimmed, blockMarker):
			closeOpen()
			rest := strings.TrimPrefix(trimmed, blockMarker)
			name, trailing, _ := strings.Cut(rest, " ")
			if name == "" {
				continue
			}
			open = &rawBlock{name: name}
			if t := strings.TrimSpace(trailing); t != "" {
				open.lines = append(open.lines, t)
			}
		default:
			if open != nil && trimmed != "" {
				open.lines = append(open.lines, trimmed)
			}
		}
	}
	closeOpen()

	md := Metadata{Extra: map[string]Block{}}

	q, ok := blocks["question"]
	if !ok {
		return Metadata{}, &domain.ParseError{Field: "question", Reason: "required tag missing"}
	}
	md.Question = blockScalar(q)
	if md.Question == "" {
		return Metadata{}, &domain.ParseError{Field: "question", Reason: "empty"}
	}

	rb, ok := blocks["rule"]
	if !ok {
		return Metadata{}, &domain.ParseError{Field: "rule", Reason: "required tag missing"}
	}
	rule, err := parseRule(rb)
	if err != nil {
		return Metadata{}, err
	}
	md.Rule = rule
	md.RuleSubs = rb.Subs

	md.Event = blockScalar(blocks["event"])
	md.Category = blockScalar(blocks["category"])
	md.Picture = blockScalar(blocks["picture"])

	for _, name := range order {
		switch name {
		case "question", "rule", "event", "category", "picture":
		default:
			md.Extra[name] = blocks[name]
		}
	}
	return md, nil
}

// blockScalar flattens a block to its scalar value. Structured optional
// blocks degrade to their text field rather than failing.
func blockScalar(b Block) string {
	if b.Scalar != "" {
		return b.Scalar
	}
	return b.Fields[textKey]
}

func parseRule(b Block) (domain.Rule, error) {
	if b.Fields == nil {
		return domain.Rule{}, &domain.ParseError{Field: "rule.source", Reason: "rule block must be structured"}
	}
	rule := domain.Rule{
		Source:   b.Fields["source"],
		Metric:   b.Fields["metric"],
		Resolver: b.Fields["resolver"],
	}
	if rule.Source == "" {
		return domain.Rule{}, &domain.ParseError{Field: "rule.source", Reason: "required sub-field missing"}
	}
	if rule.Manual() {
		return rule, nil
	}
	if rule.Metric == "" {
		return domain.Rule{}, &domain.ParseError{Field: "rule.metric", Reason: "required sub-field missing"}
	}
	op := domain.RuleOp(b.Fields["op"])
	switch op {
	case domain.OpGTE, domain.OpGT, domain.OpLTE, domain.OpLT, domain.OpEQ:
		rule.Op = op
	case "":
		return domain.Rule{}, &domain.ParseError{Field: "rule.op", Reason: "required sub-field missing"}
	default:
		return domain.Rule{}, &domain.ParseError{Field: "rule.op", Reason: "unknown operator " + strconv.Quote(string(op))}
	}
	rawTarget, ok := b.Fields["target"]
	if !ok {
		return domain.Rule{}, &domain.ParseError{Field: "rule.target", Reason: "required sub-field missing"}
	}
	target, err := strconv.ParseFloat(rawTarget, 64)
	if err != nil {
		return domain.Rule{}, &domain.ParseError{Field: "rule.target", Reason: "not a number"}
	}
	rule.Target = target
	return rule, nil
}

// Format serializes metadata back to the tag encoding. The output parses to
// a semantically equal Metadata; field ordering inside blocks is normalized.
func Format(md Metadata) string {
	var sb strings.Builder
	sb.WriteString(blockMarker + "question " + md.Question + "\n")

	sb.WriteString(blockMarker + "rule\n")
	sb.WriteString("source" + separator + md.Rule.Source + "\n")
	if !md.Rule.Manual() {
		sb.WriteString("metric" + separator + md.Rule.Metric + "\n")
		sb.WriteString("op" + separator + string(md.Rule.Op) + "\n")
		sb.WriteString("target" + separator + strconv.FormatFloat(md.Rule.Target, 'f', -1, 64) + "\n")
	}
	if md.Rule.Resolver != "" {
		sb.WriteString("resolver" + separator + md.Rule.Resolver + "\n")
	}
	writeSubs(&sb, md.RuleSubs)

	if md.Event != "" {
		sb.WriteString(blockMarker + "event " + md.Event + "\n")
	}
	if md.Category != "" {
		sb.WriteString(blockMarker + "category " + md.Category + "\n")
	}
	if md.Picture != "" {
		sb.WriteString(blockMarker + "picture " + md.Picture + "\n")
	}

	for _, name := range sortedKeys(md.Extra) {
		b := md.Extra[name]
		if b.Scalar != "" {
			sb.WriteString(blockMarker + name + " " + b.Scalar + "\n")
		} else {
			sb.WriteString(blockMarker + name + "\n")
			for _, k := range sortedKeys(b.Fields) {
				sb.WriteString(k + separator + b.Fields[k] + "\n")
			}
		}
		writeSubs(&sb, b.Subs)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeSubs(sb *strings.Builder, subs map[string]map[string]string) {
	for _, name := range sortedKeys(subs) {
		sb.WriteString(subMarker + name)
		kv := subs[name]
		for _, k := range sortedKeys(kv) {
			sb.WriteString(" " + k + separator + kv[k])
		}
		sb.WriteString("\n")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
