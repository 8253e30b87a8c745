package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenPreOrder(t *testing.T) {
	c := Node{
		Text: "a",
		Children: []Component{
			Leaf{Text: "b"},
			Node{Text: "c", Children: []Component{Leaf{Text: "d"}, Sequence{Children: []Component{Leaf{Text: "e"}}}}},
			Leaf{Text: "f"},
		},
	}
	assert.Equal(t, "abcdef", Flatten(c))
}

func TestFlattenMatchesOwnTextPlusChildren(t *testing.T) {
	children := []Component{
		Leaf{Text: "You are "},
		Node{Text: "banned", Children: []Component{Leaf{Text: "!"}}},
		Sequence{},
		Node{},
	}
	n := Node{Text: "§c", Children: children}

	want := n.Text
	for _, child := range children {
		want += Flatten(child)
	}
	assert.Equal(t, want, Flatten(n))
}

func TestFlattenEmptyInputs(t *testing.T) {
	for _, input := range []string{`{}`, `[]`, `""`, `null`, `{"extra": []}`} {
		c, err := Decode([]byte(input))
		require.NoError(t, err, input)
		assert.Equal(t, "", Flatten(c), input)
	}
	assert.Equal(t, "", Flatten(nil))
}

func TestDecodeNestedComponent(t *testing.T) {
	raw := `{"text":"","extra":[{"text":"You are temporarily banned for ","color":"red"},{"text":"29d 23h 59m 59s","color":"white"},{"text":" from this server!\n\n"},{"text":"Reason: ","color":"gray"},{"text":"Cheating through the use of unfair game advantages.","extra":[" (hacks)"]}]}`

	c, err := Decode([]byte(raw))
	require.NoError(t, err)

	node, ok := c.(Node)
	require.True(t, ok)
	assert.Len(t, node.Children, 5)
	assert.Equal(t,
		"You are temporarily banned for 29d 23h 59m 59s from this server!\n\nReason: Cheating through the use of unfair game advantages. (hacks)",
		Flatten(c))
}

func TestDecodeIgnoresNonStringText(t *testing.T) {
	c, err := Decode([]byte(`[{"text": 5}, true, 3.5, {"text": "ok"}]`))
	require.NoError(t, err)
	assert.Equal(t, "ok", Flatten(c))
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"text":`))
	assert.Error(t, err)
}

func TestFromReason(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		c := FromReason(`{"text":"hello","extra":[{"text":" world"}]}`)
		assert.Equal(t, "hello world", Flatten(c))
	})

	t.Run("json string", func(t *testing.T) {
		c := FromReason(`"quoted"`)
		assert.Equal(t, Leaf{Text: "quoted"}, c)
	})

	t.Run("plain text is wrapped", func(t *testing.T) {
		c := FromReason("You are permanently banned")
		assert.Equal(t, Node{Text: "You are permanently banned"}, c)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	c := Node{Text: "a", Children: []Component{Leaf{Text: "b"}, Sequence{Children: []Component{Node{Text: "c"}}}}}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"a","extra":["b",[{"text":"c"}]]}`, string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Flatten(c), Flatten(back))
}

func TestStripFormatting(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"§cYou are §lbanned", "You are banned"},
		{"Â§cReason: Â§fCheating", "Reason: Cheating"},
		{"no codes here", "no codes here"},
		{"trailing §", "trailing §"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFormatting(tt.in), tt.in)
	}
}
