package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML handles .yaml and .yml files
type YAML struct{}

func (YAML) Format() Format { return FormatYAML }

func (YAML) Accepts(ext string) bool {
	return acceptsExtension(ext, "yaml", "yml")
}

// Decode parses the first document of data. Mapping key order is kept by
// walking the yaml.Node tree instead of decoding into a Go map.
func (YAML) Decode(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Format: FormatYAML, Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := resolveAlias(doc.Content[0])
	switch {
	case root.Kind == yaml.MappingNode:
	case root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null":
		return nil, nil
	default:
		return nil, &DecodeError{Format: FormatYAML, Err: fmt.Errorf("line %d: top-level value must be a mapping", root.Line)}
	}

	tree, err := yamlMapping(root)
	if err != nil {
		return nil, &DecodeError{Format: FormatYAML, Err: err}
	}
	return tree, nil
}

// Encode writes t as a block mapping with two-space indentation.
func (YAML) Encode(t *Tree) (string, error) {
	if t.Len() == 0 {
		return "", nil
	}

	node, err := yamlNode(t)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.String(), nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func yamlMapping(n *yaml.Node) (*Tree, error) {
	tree := NewTree()
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], resolveAlias(n.Content[i+1])

		// "<<" merge keys contribute entries that are not set explicitly
		if keyNode.ShortTag() == "!!merge" {
			if err := yamlMergeInto(tree, valueNode); err != nil {
				return nil, err
			}
			continue
		}

		var key string
		if err := keyNode.Decode(&key); err != nil {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars: %w", keyNode.Line, err)
		}

		value, err := yamlValue(valueNode)
		if err != nil {
			return nil, err
		}
		tree.Set(key, value)
	}
	return tree, nil
}

func yamlMergeInto(tree *Tree, n *yaml.Node) error {
	sources := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		sources = n.Content
	}
	for _, src := range sources {
		src = resolveAlias(src)
		if src.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: merge key value must be a mapping", src.Line)
		}
		merged, err := yamlMapping(src)
		if err != nil {
			return err
		}
		for _, k := range merged.Keys() {
			if _, exists := tree.Get(k); !exists {
				v, _ := merged.Get(k)
				tree.Set(k, v)
			}
		}
	}
	return nil
}

func yamlValue(n *yaml.Node) (any, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.MappingNode:
		return yamlMapping(n)
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return normalizeScalar(v), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
}

// normalizeScalar maps the integer types produced by decoders onto int64
func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return v
	}
}

func yamlNode(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case *Tree:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range val.Keys() {
			keyNode := &yaml.Node{}
			if err := keyNode.Encode(k); err != nil {
				return nil, err
			}
			child, _ := val.Get(k)
			valueNode, err := yamlNode(child)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, keyNode, valueNode)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range val {
			child, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case float64:
		// whole numbers keep a fraction so they decode as floats again
		if s := strconv.FormatFloat(val, 'g', -1, 64); !strings.ContainsAny(s, ".eEIN") {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s + ".0"}, nil
		}
		return yamlScalar(val)
	default:
		return yamlScalar(val)
	}
}

func yamlScalar(v any) (*yaml.Node, error) {
	node := &yaml.Node{}
	if err := node.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode value %v: %w", v, err)
	}
	return node, nil
}
