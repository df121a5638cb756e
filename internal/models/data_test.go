package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		a, b     Value
		name     string
		expected bool
	}{
		{name: "same strings", a: String("x"), b: String("x"), expected: true},
		{name: "different strings", a: String("x"), b: String("y"), expected: false},
		{name: "same numbers", a: Number(100), b: Number(100), expected: true},
		{name: "different numbers", a: Number(100), b: Number(200), expected: false},
		{name: "different kinds", a: String("1"), b: Number(1), expected: false},
		{name: "same lists", a: List("a", "b"), b: List("a", "b"), expected: true},
		{name: "list order matters", a: List("a", "b"), b: List("b", "a"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Equal(tt.b))
		})
	}
}

func TestValue_JSON(t *testing.T) {
	fields := Fields{
		"address": String("1 Main St"),
		"value":   Number(100),
		"tags":    List("a", "b"),
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"1 Main St","value":100,"tags":["a","b"]}`, string(data))

	var decoded Fields
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, fields.Equal(decoded))
}

func TestValue_UnmarshalJSON_Invalid(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`true`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, Number(1.5), ParseValue("1.5"))
	assert.Equal(t, List("a", "b"), ParseValue("a,b"))
	assert.Equal(t, String("1 Main St"), ParseValue("1 Main St"))
	assert.Equal(t, String("NaN"), ParseValue("NaN"))
	assert.Equal(t, String("inf"), ParseValue("inf"))
	assert.Equal(t, String("-Infinity"), ParseValue("-Infinity"))
	assert.Equal(t, String("1e400"), ParseValue("1e400"))
}

func TestFields_CloneAndEqual(t *testing.T) {
	f := Fields{"id": String("P-1"), "tags": List("x")}
	clone := f.Clone()
	require.True(t, f.Equal(clone))

	clone["tags"].List[0] = "y"
	assert.Equal(t, "x", f["tags"].List[0])
	assert.False(t, f.Equal(clone))

	assert.False(t, f.Equal(Fields{"id": String("P-1")}))
	assert.Equal(t, []string{"id", "tags"}, f.Keys())
}
