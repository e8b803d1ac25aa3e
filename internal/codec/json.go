package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"
)

// JSON handles .json files. Comments and trailing commas are tolerated on decode.
type JSON struct{}

func (JSON) Format() Format { return FormatJSON }

func (JSON) Accepts(ext string) bool {
	return acceptsExtension(ext, "json")
}

// Decode parses a JSON object keeping key order.
func (JSON) Decode(data []byte) (*Tree, error) {
	data = jsonc.ToJSON(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := jsonValue(dec)
	if err != nil {
		return nil, &DecodeError{Format: FormatJSON, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Format: FormatJSON, Err: fmt.Errorf("unexpected data after top-level value at offset %d", dec.InputOffset())}
	}

	switch tree := v.(type) {
	case *Tree:
		return tree, nil
	case nil:
		return nil, nil
	default:
		return nil, &DecodeError{Format: FormatJSON, Err: errors.New("top-level value must be an object")}
	}
}

// Encode writes t as a pretty-printed JSON object.
func (JSON) Encode(t *Tree) (string, error) {
	if t.Len() == 0 {
		return "", nil
	}

	raw, err := t.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent json: %w", err)
	}
	return out.String(), nil
}

func jsonValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			tree := NewTree()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				value, err := jsonValue(dec)
				if err != nil {
					return nil, err
				}
				tree.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return tree, nil
		case '[':
			list := make([]any, 0)
			for dec.More() {
				value, err := jsonValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return f, nil
	default:
		// string, bool or nil
		return t, nil
	}
}
