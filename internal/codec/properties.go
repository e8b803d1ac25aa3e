package codec

import (
	"fmt"
	"strings"

	"github.com/magiconair/properties"
)

// Properties handles flat .properties files
type Properties struct{}

func (Properties) Format() Format { return FormatProperties }

func (Properties) Accepts(ext string) bool {
	return acceptsExtension(ext, "properties")
}

// Decode parses key=value lines into a flat tree of strings. Placeholder
// expansion is disabled so ${...} values are stored verbatim.
func (Properties) Decode(data []byte) (*Tree, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, &DecodeError{Format: FormatProperties, Err: err}
	}
	p.DisableExpansion = true

	tree := NewTree()
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		tree.Set(key, value)
	}
	return tree, nil
}

// Encode writes one key=value line per leaf, flattening nested trees into
// dotted keys and lists into indexed keys.
func (Properties) Encode(t *Tree) (string, error) {
	if t.Len() == 0 {
		return "", nil
	}

	var lines []string
	flattenProperties(&lines, "", t)
	return strings.Join(lines, "\n"), nil
}

func flattenProperties(lines *[]string, prefix string, v any) {
	switch val := v.(type) {
	case *Tree:
		for _, k := range val.Keys() {
			child, _ := val.Get(k)
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenProperties(lines, key, child)
		}
	case []any:
		for i, item := range val {
			flattenProperties(lines, fmt.Sprintf("%s[%d]", prefix, i), item)
		}
	case nil:
		*lines = append(*lines, escapePropertyKey(prefix)+"=")
	default:
		*lines = append(*lines, escapePropertyKey(prefix)+"="+escapePropertyValue(fmt.Sprint(val)))
	}
}

var propertyKeyEscaper = strings.NewReplacer(
	`\`, `\\`,
	"=", `\=`,
	":", `\:`,
	" ", `\ `,
	"#", `\#`,
	"!", `\!`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

var propertyValueEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapePropertyKey(k string) string {
	return propertyKeyEscaper.Replace(k)
}

func escapePropertyValue(v string) string {
	escaped := propertyValueEscaper.Replace(v)
	// leading whitespace would be swallowed by the parser
	if trimmed := strings.TrimLeft(escaped, " \f"); len(trimmed) != len(escaped) {
		escaped = strings.Repeat(`\ `, len(escaped)-len(trimmed)) + trimmed
	}
	return escaped
}
