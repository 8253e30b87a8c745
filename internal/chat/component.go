// Package chat models the rich-text chat components a Minecraft server sends
// as disconnect reasons, and flattens them into plain text.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Component is a rich-text chat component. The set of implementations is
// closed: Leaf, Sequence and Node.
type Component interface {
	json.Marshaler
	component()
}

// Leaf is a bare string component.
type Leaf struct {
	Text string
}

// Sequence is a top-level JSON array of components.
type Sequence struct {
	Children []Component
}

// Node is a JSON object component with its own text and "extra" children.
type Node struct {
	Text     string
	Children []Component
}

func (Leaf) component()     {}
func (Sequence) component() {}
func (Node) component()     {}

// Flatten concatenates the text of c in pre-order: a node's own text first,
// then each child's flattening from left to right. A nil component flattens
// to the empty string.
func Flatten(c Component) string {
	var sb strings.Builder
	flattenInto(&sb, c)
	return sb.String()
}

func flattenInto(sb *strings.Builder, c Component) {
	switch v := c.(type) {
	case Leaf:
		sb.WriteString(v.Text)
	case Sequence:
		for _, child := range v.Children {
			flattenInto(sb, child)
		}
	case Node:
		sb.WriteString(v.Text)
		for _, child := range v.Children {
			flattenInto(sb, child)
		}
	}
}

// Decode parses a JSON chat component. Strings become leaves, arrays become
// sequences and objects become nodes built from their "text" and "extra"
// fields. Other JSON values (numbers, booleans, null) carry no text and
// decode to an empty leaf.
func Decode(data []byte) (Component, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode chat component: %w", err)
	}
	return decodeRaw(raw)
}

func decodeRaw(raw json.RawMessage) (Component, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Leaf{}, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("failed to decode text component: %w", err)
		}
		return Leaf{Text: s}, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode component list: %w", err)
		}
		children, err := decodeList(items)
		if err != nil {
			return nil, err
		}
		return Sequence{Children: children}, nil

	case '{':
		var obj struct {
			Text  json.RawMessage `json:"text"`
			Extra json.RawMessage `json:"extra"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode component object: %w", err)
		}

		node := Node{}
		// Non-string "text" values contribute nothing.
		var text string
		if len(obj.Text) > 0 && json.Unmarshal(obj.Text, &text) == nil {
			node.Text = text
		}

		if len(obj.Extra) > 0 {
			extra, err := decodeRaw(obj.Extra)
			if err != nil {
				return nil, err
			}
			if seq, ok := extra.(Sequence); ok {
				node.Children = seq.Children
			} else {
				node.Children = []Component{extra}
			}
		}
		return node, nil

	default:
		return Leaf{}, nil
	}
}

func decodeList(items []json.RawMessage) ([]Component, error) {
	children := make([]Component, 0, len(items))
	for _, item := range items {
		child, err := decodeRaw(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// FromReason converts the reason string carried by a disconnect packet into a
// component. Valid JSON is decoded; anything else is wrapped as a node whose
// only content is the raw string.
func FromReason(reason string) Component {
	if json.Valid([]byte(reason)) {
		if c, err := Decode([]byte(reason)); err == nil {
			return c
		}
	}
	return Node{Text: reason}
}

// MarshalJSON encodes a leaf as a JSON string.
func (l Leaf) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Text)
}

// MarshalJSON encodes a sequence as a JSON array.
func (s Sequence) MarshalJSON() ([]byte, error) {
	children := s.Children
	if children == nil {
		children = []Component{}
	}
	return json.Marshal(children)
}

// MarshalJSON encodes a node as {"text": ..., "extra": [...]}.
func (n Node) MarshalJSON() ([]byte, error) {
	type wire struct {
		Text  string      `json:"text"`
		Extra []Component `json:"extra,omitempty"`
	}
	return json.Marshal(wire{Text: n.Text, Extra: n.Children})
}

// Legacy formatting codes are a section sign followed by one code character.
// Text that went through a Latin-1 round trip carries a stray "Â" before the
// section sign, so that prefix is removed along with the code.
var formattingCode = regexp.MustCompile("Â?§.")

// StripFormatting removes legacy formatting codes from s.
func StripFormatting(s string) string {
	return formattingCode.ReplaceAllString(s, "")
}
