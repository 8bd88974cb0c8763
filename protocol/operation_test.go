package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderbake/tenderbake/common"
)

func testPayloadHash(b byte) common.PayloadHash {
	var p common.PayloadHash
	p[0] = b
	return p
}

func consensusOpJSON(kind string, slot uint16, level, round int32, payload common.PayloadHash) []byte {
	return []byte(fmt.Sprintf(
		`{"hash":%q,"branch":%q,"contents":[{"kind":%q,"slot":%d,"level":%d,"round":%d,"block_payload_hash":%q}],"signature":"sig"}`,
		common.OperationHash{0x42}.String(), common.Hash{1}.String(), kind, slot, level, round, payload.String()))
}

func managerOpJSON() []byte {
	return []byte(fmt.Sprintf(
		`{"hash":%q,"branch":%q,"contents":[{"kind":"transaction","source":"tz1x","fee":"1000","destination":"tz1y"}],"signature":"sig"}`,
		common.OperationHash{0x43}.String(), common.Hash{1}.String()))
}

func TestOperationClassification(t *testing.T) {
	cases := []struct {
		kind string
		pass Pass
	}{
		{"preendorsement", PassConsensus},
		{"endorsement", PassConsensus},
		{"ballot", PassVotes},
		{"proposals", PassVotes},
		{"seed_nonce_revelation", PassAnonymous},
		{"double_endorsement_evidence", PassAnonymous},
		{"activate_account", PassAnonymous},
		{"transaction", PassManagers},
		{"origination", PassManagers},
		{"reveal", PassManagers},
	}
	for _, tc := range cases {
		raw := []byte(fmt.Sprintf(`{"branch":"b","contents":[{"kind":%q}]}`, tc.kind))
		var op Operation
		require.NoError(t, json.Unmarshal(raw, &op))
		pass, err := op.Pass()
		require.NoError(t, err)
		assert.Equal(t, tc.pass, pass, tc.kind)
	}

	var empty Operation
	require.NoError(t, json.Unmarshal([]byte(`{"branch":"b","contents":[]}`), &empty))
	_, err := empty.Pass()
	assert.Error(t, err)
}

func TestConsensusContentParsing(t *testing.T) {
	ph := testPayloadHash(0x17)
	var op Operation
	require.NoError(t, json.Unmarshal(consensusOpJSON("preendorsement", 7, 42, 1, ph), &op))

	c, ok := op.Consensus()
	require.True(t, ok)
	assert.Equal(t, "preendorsement", c.Kind)
	assert.Equal(t, uint16(7), c.Slot)
	assert.Equal(t, int32(42), c.Level)
	assert.Equal(t, int32(1), c.Round)
	assert.Equal(t, ph, c.PayloadHash)

	var manager Operation
	require.NoError(t, json.Unmarshal(managerOpJSON(), &manager))
	_, ok = manager.Consensus()
	assert.False(t, ok)
}

// Re-marshalling must be byte-faithful: unknown fields survive verbatim.
func TestOperationRoundTrip(t *testing.T) {
	raw := managerOpJSON()
	var op Operation
	require.NoError(t, json.Unmarshal(raw, &op))
	out, err := json.Marshal(&op)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
	assert.Equal(t, raw, []byte(out))
}

func TestEncodeInlinedVotes(t *testing.T) {
	branch := common.Hash{0xbb}
	c := &ConsensusContent{Slot: 0x0102, Level: 0x01020304, Round: 2, PayloadHash: testPayloadHash(0x17)}

	pre := EncodePreendorsement(branch, c)
	end := EncodeEndorsement(branch, c)
	require.Len(t, pre, 32+1+2+4+4+32)
	require.Len(t, end, len(pre))

	assert.Equal(t, branch[:], pre[:32])
	assert.Equal(t, byte(TagPreendorsement), pre[32])
	assert.Equal(t, byte(TagEndorsement), end[32])
	assert.Equal(t, uint16(0x0102), binary.BigEndian.Uint16(pre[33:35]))
	assert.Equal(t, uint32(0x01020304), binary.BigEndian.Uint32(pre[35:39]))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(pre[39:43]))
	assert.Equal(t, c.PayloadHash[:], pre[43:])

	// the two kinds differ only in the tag
	assert.Equal(t, pre[:32], end[:32])
	assert.Equal(t, pre[33:], end[33:])
}
