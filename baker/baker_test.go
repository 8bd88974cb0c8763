package baker

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/consensus/tenderbake"
	"github.com/tenderbake/tenderbake/crypto"
	"github.com/tenderbake/tenderbake/protocol"
	"github.com/tenderbake/tenderbake/rpc"
)

var testChainID = common.ChainID{0x7a, 0x06, 0xa7, 0x70}

func testWallet(t *testing.T) *crypto.Wallet {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	w, err := crypto.WalletFromSeed(common.EncodeBase58Check(common.SeedPrefix, seed))
	require.NoError(t, err)
	return w
}

func testBaker(t *testing.T, endpoint string) *Baker {
	t.Helper()
	wallet := testWallet(t)
	client, err := rpc.NewClient(endpoint)
	require.NoError(t, err)
	seen, err := lru.New(16)
	require.NoError(t, err)
	b := &Baker{
		config:  Config{Protocol: Defaults.Protocol},
		log:     log.New("module", "baker"),
		wallet:  wallet,
		client:  client,
		chainID: testChainID,
		tbConfig: tenderbake.Config{
			ConsensusThreshold:     tenderbake.Threshold(8),
			MinimalBlockDelay:      15 * time.Second,
			DelayIncrementPerRound: 5 * time.Second,
		},
		powThreshold: uint64(1) << 56,
		machine:      tenderbake.NewMachine(),
		slots:        NewSlotsInfo(8, wallet.PublicKeyHash()),
		events:       make(chan event, 64),
		seen:         seen,
	}
	b.timer = NewTimer(func() { b.events <- event{tick: true} })
	t.Cleanup(b.timer.Stop)
	return b
}

func TestInjectVote(t *testing.T) {
	var injected []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/injection/operation", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testChainID.String(), r.URL.Query().Get("chain"))
		var body string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var err error
		injected, err = hex.DecodeString(body)
		require.NoError(t, err)
		json.NewEncoder(w).Encode(common.OperationHash{0x01}.String())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := testBaker(t, srv.URL)
	b.slots.Insert(1, []rpc.ValidatorSlots{{Delegate: b.wallet.PublicKeyHash().String(), Slots: []uint16{3, 6}}})

	pred := common.Hash{0xbb}
	payload := common.PayloadHash{0xf0}
	b.injectVote(crypto.PreendorsementMagic, pred, tenderbake.BlockID{Level: 1, Round: 0, PayloadHash: payload})

	require.NotEmpty(t, injected)
	body, sig := injected[:len(injected)-64], injected[len(injected)-64:]
	assert.Equal(t, pred[:], body[:32])
	assert.Equal(t, byte(protocol.TagPreendorsement), body[32])
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(body[33:35]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(body[35:39]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(body[39:43]))
	assert.Equal(t, payload[:], body[43:75])
	assert.True(t, b.wallet.Verify(crypto.PreendorsementMagic, testChainID, body, sig))
	// the watermark separates the vote kinds
	assert.False(t, b.wallet.Verify(crypto.EndorsementMagic, testChainID, body, sig))
}

func TestInjectVoteWithoutSlot(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	b := testBaker(t, srv.URL)
	b.injectVote(crypto.EndorsementMagic, common.Hash{1}, tenderbake.BlockID{Level: 1})
	assert.False(t, called)
}

func opWithHash(t *testing.T, kind string, b byte) *protocol.Operation {
	t.Helper()
	var h common.OperationHash
	h[0] = b
	raw := fmt.Sprintf(`{"hash":%q,"branch":%q,"contents":[{"kind":%q}]}`,
		h.String(), common.Hash{1}.String(), kind)
	var op protocol.Operation
	require.NoError(t, json.Unmarshal([]byte(raw), &op))
	return &op
}

// Self-proposal end to end: the derived payload commitment and the
// proof-of-work predicate hold on the injected header.
func TestPropose(t *testing.T) {
	pred := common.Hash{0x05}
	blockTime := time.Unix(1600000015, 0).UTC()
	fitness := []string{"02", "00000002", "", "ffffffff", "00000000"}

	payload := &protocol.Payload{}
	require.NoError(t, payload.Update(opWithHash(t, "transaction", 0x21)))
	require.NoError(t, payload.Update(opWithHash(t, "transaction", 0x22)))
	olh, err := payload.OperationListHash()
	require.NoError(t, err)
	wantPayloadHash := protocol.ComputePayloadHash(pred, 0, olh)

	var sawPreapply, sawInject bool
	var injectedHeader []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/chains/main/blocks/head/helpers/preapply/block", func(w http.ResponseWriter, r *http.Request) {
		sawPreapply = true
		var req rpc.PreapplyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Operations, 4)
		assert.Len(t, req.Operations[1], 0)
		assert.Len(t, req.Operations[3], 2)
		assert.Equal(t, wantPayloadHash.String(), req.ProtocolData.PayloadHash)
		assert.Equal(t, int32(0), req.ProtocolData.PayloadRound)
		assert.NotEmpty(t, req.ProtocolData.Signature)

		var applied []rpc.InjectOperation
		for _, op := range req.Operations[3] {
			applied = append(applied, rpc.InjectOperation{Hash: op.Hash, Branch: op.Branch, Data: "00"})
		}
		result := rpc.PreapplyResult{
			ShellHeader: rpc.ShellHeader{
				Level:          2,
				Proto:          2,
				Predecessor:    pred.String(),
				Timestamp:      blockTime.Format(time.RFC3339),
				ValidationPass: 4,
				OperationsHash: common.OperationListListHash(olh).String(),
				Fitness:        fitness,
				Context:        common.EncodeBase58Check(common.ContextHashPrefix, make([]byte, 32)),
			},
			Operations: []rpc.PreapplyOperations{{}, {}, {}, {Applied: applied}},
		}
		json.NewEncoder(w).Encode(result)
	})
	mux.HandleFunc("/injection/block", func(w http.ResponseWriter, r *http.Request) {
		sawInject = true
		var body struct {
			Data       string                    `json:"data"`
			Operations [][]rpc.InjectOperation   `json:"operations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Operations, 4)
		var err error
		injectedHeader, err = hex.DecodeString(body.Data)
		require.NoError(t, err)
		json.NewEncoder(w).Encode(common.Hash{0x77}.String())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := testBaker(t, srv.URL)
	action := &tenderbake.ProposeAction{
		Block: &tenderbake.BlockInfo{
			PredHash:  pred,
			BlockID:   tenderbake.BlockID{Level: 2, Round: 0},
			Timestamp: blockTime,
			Payload:   payload,
		},
		Proposer: tenderbake.Validator{ID: b.wallet.PublicKeyHash(), Power: 1},
	}
	require.NoError(t, b.propose(action))
	require.True(t, sawPreapply)
	require.True(t, sawInject)

	// the injected bytes are header ‖ signature
	body, sig := injectedHeader[:len(injectedHeader)-64], injectedHeader[len(injectedHeader)-64:]
	assert.True(t, b.wallet.Verify(crypto.BlockMagic, testChainID, body, sig))

	// locate the protocol part behind the variable-length fitness
	fitnessLen := binary.BigEndian.Uint32(body[78:82])
	protoPart := body[82+fitnessLen+32:]
	assert.Equal(t, wantPayloadHash[:], protoPart[:32])

	// proof of work: the digest of the header with a zeroed signature reads
	// under the threshold
	zeroed := append(append([]byte(nil), body...), make([]byte, 64)...)
	digest := crypto.Digest256(zeroed)
	assert.LessOrEqual(t, binary.BigEndian.Uint64(digest[:8]), b.powThreshold)
}

// The driver's operation handling: a replayed operation is recorded in the
// seen window.
func TestHandleOperationsDedup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode("ok")
	}))
	defer srv.Close()

	b := testBaker(t, srv.URL)
	now := time.Unix(1600000000, 0)

	op := opWithHash(t, "transaction", 0x31)
	b.handleOperations([]*protocol.Operation{op}, now)
	b.handleOperations([]*protocol.Operation{op}, now)
	assert.True(t, b.seen.Contains(op.Hash))
}
