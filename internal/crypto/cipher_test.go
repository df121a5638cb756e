package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	key := make([]byte, KeySize)
	_, _ = rand.Read(key)

	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestNewSealer_InvalidKey(t *testing.T) {
	_, err := NewSealer(make([]byte, 16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption key must be 32 bytes")
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t)
	plaintext := []byte("snapshot bytes")

	sealed, err := s.Seal(plaintext, []byte("P-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "snapshot bytes")

	opened, err := s.Open(sealed, []byte("P-1"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	// Одинаковый plaintext дает разный шифртекст (случайный nonce)
	sealed2, err := s.Seal(plaintext, []byte("P-1"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestSealer_OpenFailures(t *testing.T) {
	s := newTestSealer(t)
	sealed, err := s.Seal([]byte("data"), []byte("P-1"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		sealed     []byte
		additional []byte
	}{
		{name: "wrong additional data", sealed: sealed, additional: []byte("P-2")},
		{name: "too short", sealed: sealed[:10], additional: []byte("P-1")},
		{name: "tampered", sealed: append(append([]byte{}, sealed[:len(sealed)-1]...), sealed[len(sealed)-1]^0xff), additional: []byte("P-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(tt.sealed, tt.additional)
			assert.Error(t, err)
		})
	}

	other := newTestSealer(t)
	_, err = other.Open(sealed, []byte("P-1"))
	assert.Error(t, err, "чужой ключ не должен открывать данные")

	_, err = s.Seal(nil, nil)
	assert.Error(t, err)
}
