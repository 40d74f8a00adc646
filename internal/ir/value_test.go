package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("")
	var _ IRValue = IRInt(0)
	var _ IRValue = IRBool(false)
	var _ IRValue = IRArray{}
	var _ IRValue = IRObject{}
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"a", "ab", -1},
		{"𐀀", "\ue000", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareKeysRFC8785(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"name":"Jane","count":2,"ok":true,"gone":null,"list":[1,"a"]}`))
	require.NoError(t, err)

	want := IRObject{
		"name":  IRString("Jane"),
		"count": IRInt(2),
		"ok":    IRBool(true),
		"gone":  IRNull{},
		"list":  IRArray{IRInt(1), IRString("a")},
	}
	assert.True(t, Equal(want, v), "got %#v", v)
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	tests := []string{`1.5`, `{"a":2.0}`, `[1e3]`}
	for _, input := range tests {
		_, err := UnmarshalValue([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestUnmarshalObjectRequiresObject(t *testing.T) {
	_, err := UnmarshalObject([]byte(`[1]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array")
}

func TestMarshalRoundTrip(t *testing.T) {
	obj := IRObject{
		"zeta":  IRString("z"),
		"alpha": IRArray{IRObject{"b": IRInt(1), "a": IRNull{}}},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":[{"a":null,"b":1}],"zeta":"z"}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, IRNull{}))
	assert.True(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1)}))
	assert.False(t, Equal(IRInt(1), IRString("1")))
	assert.False(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}))
	assert.False(t, Equal(IRArray{}, IRObject{}))
}

func TestFromAnyAndToAny(t *testing.T) {
	v, err := FromAny(map[string]any{"n": 3, "s": "x", "l": []any{true, nil}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"n": int64(3),
		"s": "x",
		"l": []any{true, nil},
	}, ToAny(v))
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "", Text(IRNull{}))
	assert.Equal(t, "abc", Text(IRString("abc")))
	assert.Equal(t, "42", Text(IRInt(42)))
	assert.Equal(t, "yes", Text(IRBool(true)))
	assert.Equal(t, `["a"]`, Text(IRArray{IRString("a")}))
}
