package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldEntry_IsNewerThan(t *testing.T) {

	tests := []struct {
		other    *FieldEntry
		self     *FieldEntry
		name     string
		expected bool
	}{
		{
			name:     "self timestamp greater",
			self:     &FieldEntry{Timestamp: 101, NodeID: "nodeA"},
			other:    &FieldEntry{Timestamp: 100, NodeID: "nodeA"},
			expected: true,
		},
		{
			name:     "self timestamp smaller",
			self:     &FieldEntry{Timestamp: 90, NodeID: "nodeA"},
			other:    &FieldEntry{Timestamp: 100, NodeID: "nodeA"},
			expected: false,
		},
		{
			name:     "timestamps equal, self NodeID greater lex",
			self:     &FieldEntry{Timestamp: 100, NodeID: "nodeB"},
			other:    &FieldEntry{Timestamp: 100, NodeID: "nodeA"},
			expected: true,
		},
		{
			name:     "timestamps equal, self NodeID lower lex",
			self:     &FieldEntry{Timestamp: 100, NodeID: "nodeA"},
			other:    &FieldEntry{Timestamp: 100, NodeID: "nodeB"},
			expected: false,
		},
		{
			name:     "identical versions",
			self:     &FieldEntry{Timestamp: 100, NodeID: "nodeA"},
			other:    &FieldEntry{Timestamp: 100, NodeID: "nodeA"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.self.IsNewerThan(tt.other)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFieldEntry_Clone(t *testing.T) {
	original := &FieldEntry{
		NodeID:    "node1",
		Value:     List("a", "b"),
		Timestamp: 42,
		Deleted:   true,
	}

	clone := original.Clone()
	assert.Equal(t, original, clone)

	// Изменение клона не должно затрагивать оригинал
	clone.Value.List[0] = "changed"
	assert.Equal(t, "a", original.Value.List[0])
}
