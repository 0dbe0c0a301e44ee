package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = List{String("a"), Int(1)}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("red"), String("red"), true},
		{"different string", String("red"), String("blue"), false},
		{"int vs string", Int(1), String("1"), false},
		{"same int", Int(7), Int(7), true},
		{"bools", Bool(true), Bool(true), true},
		{"nil equals null", nil, Null{}, true},
		{"lists", List{Int(1), String("x")}, List{Int(1), String("x")}, true},
		{"list length", List{Int(1)}, List{Int(1), Int(2)}, false},
		{"nested list", List{List{Int(1)}}, List{List{Int(2)}}, false},
		{"canonically equivalent strings", String("caf\u00e9"), String("cafe\u0301"), true},
		{"nested equivalent strings", List{String("\u00e9")}, List{String("e\u0301")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	c, ok := Compare(Int(3), Int(10))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(String("b"), String("a"))
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Compare(Bool(false), Bool(true))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(Int(1), String("1"))
	assert.False(t, ok, "mixed kinds are not comparable")

	_, ok = Compare(List{}, List{})
	assert.False(t, ok, "lists are not ordered")

	c, ok = Compare(String("cafe\u0301"), String("caf\u00e9"))
	require.True(t, ok)
	assert.Equal(t, 0, c)
}

// Equal, the string operators and Key agree on canonically equivalent
// spellings.
func TestNFCConsistency(t *testing.T) {
	composed, decomposed := String("caf\u00e9"), String("cafe\u0301")
	assert.Equal(t, Key(composed), Key(decomposed))
	assert.Equal(t, Equal(composed, decomposed), Key(composed) == Key(decomposed))
	assert.True(t, OpEq.Apply(composed, decomposed))
	assert.False(t, OpNe.Apply(composed, decomposed))
	assert.True(t, OpPrefix.Apply(composed, String("caf\u00e9")))
	assert.True(t, OpPrefix.Apply(decomposed, String("caf\u00e9")))
	assert.True(t, OpContains.Apply(String("un cafe\u0301 noir"), composed))
	assert.True(t, OpIn.Apply(decomposed, List{String("tea"), composed}))
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"string", "red", String("red")},
		{"int", 3, Int(3)},
		{"int64", int64(-9), Int(-9)},
		{"integral float", float64(12), Int(12)},
		{"json number", json.Number("42"), Int(42)},
		{"bool", true, Bool(true)},
		{"list", []any{"a", 1}, List{String("a"), Int(1)}},
		{"value passthrough", String("x"), String("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %v", got)
		})
	}
}

func TestFromAnyRejectsFractions(t *testing.T) {
	_, err := FromAny(1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fractional")

	_, err = FromAny(json.Number("2.25"))
	require.Error(t, err)

	_, err = FromAny(map[string]any{"a": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, Int(42), ParseValue("42"))
	assert.Equal(t, Bool(true), ParseValue("true"))
	assert.Equal(t, String("red"), ParseValue("red"))
	assert.Equal(t, String("4.5"), ParseValue("4.5"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "red", Format(String("red")))
	assert.Equal(t, "12", Format(Int(12)))
	assert.Equal(t, "null", Format(nil))
	assert.Equal(t, "[a, 1]", Format(List{String("a"), Int(1)}))
}

func TestFieldsSortedKeys(t *testing.T) {
	f := Fields{"zebra": Int(1), "apple": Int(2), "banana": Int(3)}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, f.SortedKeys())
}

func TestFieldsJSONRoundTrip(t *testing.T) {
	f := Fields{"key": String("color"), "n": Int(3), "ok": Bool(false)}

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"key":"color","n":3,"ok":false}`, string(data))

	var back Fields
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, f, back)
}

func TestFactCloneIsolation(t *testing.T) {
	f := NewFact("Measurement", F("key", String("color")), F("value", String("red")))
	c := f.Clone()
	c.Fields["value"] = String("blue")

	assert.Equal(t, String("red"), f.Fields["value"])
	assert.Equal(t, String("blue"), c.Fields["value"])

	w := f.With("value", String("green"))
	assert.Equal(t, String("green"), w.Fields["value"])
	assert.Equal(t, String("red"), f.Fields["value"])
}

func TestFactIDString(t *testing.T) {
	assert.Equal(t, "#12", FactID(12).String())
}
