package common

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The mainnet chain id is the canonical fixed vector for the b58check layer.
func TestChainIDVector(t *testing.T) {
	c, err := ParseChainID("NetXdQprcVkpaWU")
	require.NoError(t, err)
	assert.Equal(t, "7a06a770", hex.EncodeToString(c[:]))
	assert.Equal(t, "NetXdQprcVkpaWU", c.String())
}

func TestBase58CheckRoundTrips(t *testing.T) {
	cases := []struct {
		prefix  Prefix
		payload []byte
	}{
		{BlockHashPrefix, make([]byte, 32)},
		{OperationHashPrefix, bytesOf(0x42, 32)},
		{PayloadHashPrefix, bytesOf(0x17, 32)},
		{OperationListListHashPrefix, bytesOf(0x99, 32)},
		{NonceHashPrefix, bytesOf(0x01, 32)},
		{PKHPrefix, bytesOf(0xab, 20)},
		{SeedPrefix, bytesOf(0x33, 32)},
		{SignaturePrefix, bytesOf(0x0f, 64)},
	}
	for _, tc := range cases {
		encoded := EncodeBase58Check(tc.prefix, tc.payload)
		assert.True(t, strings.HasPrefix(encoded, tc.prefix.Tag), "prefix %s, got %s", tc.prefix.Tag, encoded)
		decoded, err := DecodeBase58Check(tc.prefix, encoded)
		require.NoError(t, err)
		assert.Equal(t, tc.payload, decoded)
	}
}

func TestBase58CheckRejects(t *testing.T) {
	encoded := EncodeBase58Check(BlockHashPrefix, bytesOf(0x42, 32))

	// wrong expected kind
	_, err := DecodeBase58Check(OperationHashPrefix, encoded)
	assert.Error(t, err)

	// corrupted body
	corrupted := []byte(encoded)
	if corrupted[10] == 'z' {
		corrupted[10] = 'x'
	} else {
		corrupted[10] = 'z'
	}
	_, err = DecodeBase58Check(BlockHashPrefix, string(corrupted))
	assert.Error(t, err)

	// not base58 at all
	_, err = DecodeBase58Check(BlockHashPrefix, "0OIl")
	assert.Error(t, err)
}

func TestHashHelpers(t *testing.T) {
	h := HexToHash("0x0102")
	assert.Equal(t, byte(0x02), h[31])
	assert.Equal(t, byte(0x01), h[30])
	assert.False(t, h.IsZero())
	assert.True(t, Hash{}.IsZero())
	assert.True(t, PayloadHash{}.IsZero())

	round := BytesToHash(h.Bytes())
	assert.Equal(t, h, round)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
