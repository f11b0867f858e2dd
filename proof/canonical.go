package proof

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ProofField is the payload member that carries the ownership proof. It is
// never part of the signed bytes.
const ProofField = "proofOfOwnership"

// Canonicalize serializes v deterministically: object keys sorted bytewise
// at every level, no insignificant whitespace, no HTML escaping, and numbers
// written exactly as they were decoded.
//
// v may be any JSON-marshalable value. Maps decoded with json.Decoder.UseNumber
// keep their numeric text verbatim.
func Canonicalize(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalPayload returns the canonical bytes of a registration payload with
// the ownership proof removed. Signers and verifiers must both use it.
func CanonicalPayload(raw map[string]any) ([]byte, error) {
	stripped := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == ProofField {
			continue
		}
		stripped[k] = v
	}
	return Canonicalize(stripped)
}

// normalize round-trips v through encoding/json so that structs, typed maps
// and slices all collapse to map[string]any, []any and json.Number.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("proof: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("proof: decode: %w", err)
	}
	return out, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("proof: unsupported canonical type %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("proof: encode string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
