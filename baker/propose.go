package baker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/consensus/tenderbake"
	"github.com/tenderbake/tenderbake/crypto"
	"github.com/tenderbake/tenderbake/protocol"
	"github.com/tenderbake/tenderbake/rpc"
)

// perform executes the machine's actions in order. Each action is attempted
// independently; a failing one is logged and does not abort the batch.
func (b *Baker) perform(actions []tenderbake.Action) {
	for _, action := range actions {
		switch a := action.(type) {
		case *tenderbake.ScheduleTimeoutAction:
			b.log.Debug("scheduling timeout", "deadline", a.Deadline)
			b.timer.Schedule(a.Deadline)
		case *tenderbake.PreendorseAction:
			b.injectVote(crypto.PreendorsementMagic, a.PredHash, a.BlockID)
		case *tenderbake.EndorseAction:
			b.injectVote(crypto.EndorsementMagic, a.PredHash, a.BlockID)
		case *tenderbake.ProposeAction:
			if err := b.propose(a); err != nil {
				b.log.Error("proposing failed", "level", a.Block.BlockID.Level, "round", a.Block.BlockID.Round, "err", err)
			}
		}
	}
}

// injectVote signs and injects a consensus vote for our canonical slot at
// the vote's level. Holding no slot there is not an error: the machine emits
// votes unconditionally and the driver applies our rights.
func (b *Baker) injectVote(magic byte, pred common.Hash, id tenderbake.BlockID) {
	slot, ok := b.slots.Own(id.Level)
	if !ok {
		return
	}
	content := &protocol.ConsensusContent{
		Slot:        slot,
		Level:       id.Level,
		Round:       id.Round,
		PayloadHash: id.PayloadHash,
	}
	var body []byte
	var kind string
	if magic == crypto.PreendorsementMagic {
		body = protocol.EncodePreendorsement(pred, content)
		kind = "preendorsement"
	} else {
		body = protocol.EncodeEndorsement(pred, content)
		kind = "endorsement"
	}
	signed, _, err := b.wallet.Sign(magic, b.chainID, body)
	if err != nil {
		b.log.Error("signing vote failed", "kind", kind, "err", err)
		return
	}
	hash, err := b.client.InjectOperation(b.chainID, signed)
	if err != nil {
		b.log.Error("injecting vote failed", "kind", kind, "err", err)
		return
	}
	b.log.Info("injected vote", "kind", kind, "level", id.Level, "round", id.Round, "operation", hash)
}

// propose assembles the block the machine decided to produce: derive the
// payload commitment when it is the zero sentinel, preapply, stamp the
// proof-of-work nonce, sign and inject.
func (b *Baker) propose(a *tenderbake.ProposeAction) error {
	block := a.Block
	payloadHash := block.BlockID.PayloadHash
	payloadRound := block.BlockID.PayloadRound
	if payloadHash.IsZero() {
		olh, err := block.Payload.OperationListHash()
		if err != nil {
			return fmt.Errorf("operation list hash: %w", err)
		}
		payloadHash = protocol.ComputePayloadHash(block.PredHash, payloadRound, olh)
	}

	protoHeader := protocol.ProtocolHeader{
		PayloadHash:               payloadHash,
		PayloadRound:              payloadRound,
		ProofOfWorkNonce:          powSeed,
		LiquidityBakingEscapeVote: b.config.LiquidityBakingEscapeVote,
	}
	if b.blocksPerCommitment > 0 && block.BlockID.Level%b.blocksPerCommitment == 0 {
		var seed [32]byte
		if _, err := rand.Read(seed[:]); err != nil {
			return err
		}
		nh := common.NonceHash(crypto.Digest256(seed[:]))
		protoHeader.SeedNonceHash = &nh
	}

	_, sig, err := b.wallet.Sign(crypto.BlockMagic, b.chainID, protoHeader.Encode())
	if err != nil {
		return err
	}

	req := &rpc.PreapplyRequest{
		ProtocolData: rpc.PreapplyProtocolData{
			Protocol:                  b.config.Protocol,
			PayloadHash:               payloadHash.String(),
			PayloadRound:              payloadRound,
			ProofOfWorkNonce:          hex.EncodeToString(protoHeader.ProofOfWorkNonce[:]),
			LiquidityBakingEscapeVote: protoHeader.LiquidityBakingEscapeVote,
			Signature:                 common.EncodeBase58Check(common.SignaturePrefix, sig),
		},
		Operations: b.sublists(block),
	}
	if protoHeader.SeedNonceHash != nil {
		req.ProtocolData.SeedNonceHash = protoHeader.SeedNonceHash.String()
	}

	result, err := b.client.PreapplyBlock(req, block.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("preapply: %w", err)
	}

	header, err := headerFromShell(&result.ShellHeader, protoHeader)
	if err != nil {
		return err
	}
	nonce := guessProofOfWork(header, b.powThreshold)
	header.ProofOfWorkNonce = nonce
	b.log.Debug("proof of work stamped", "level", header.Level, "nonce", hex.EncodeToString(nonce[:]))

	header.Signature = nil
	signedHeader, _, err := b.wallet.Sign(crypto.BlockMagic, b.chainID, header.EncodeUnsigned())
	if err != nil {
		return err
	}

	lists := make([][]rpc.InjectOperation, len(result.Operations))
	for i, pass := range result.Operations {
		lists[i] = pass.Applied
	}
	hash, err := b.client.InjectBlock(signedHeader, lists)
	if err != nil {
		return fmt.Errorf("inject block: %w", err)
	}
	b.log.Info("injected block", "level", block.BlockID.Level, "round", block.BlockID.Round, "hash", hash)
	return nil
}

// sublists lays the block's operations out in the four-pass form: quorum and
// prequorum witnesses first, then the payload buckets.
func (b *Baker) sublists(block *tenderbake.BlockInfo) [][]*protocol.Operation {
	var consensus []*protocol.Operation
	if block.Quorum != nil {
		consensus = append(consensus, block.Quorum.Votes.Operations()...)
	}
	if block.Prequorum != nil {
		consensus = append(consensus, block.Prequorum.Votes.Operations()...)
	}
	return [][]*protocol.Operation{
		consensus,
		block.Payload.Votes,
		block.Payload.Anonymous,
		block.Payload.Managers,
	}
}

// headerFromShell merges the preapply shell header with the protocol part
// into the binary header form.
func headerFromShell(sh *rpc.ShellHeader, ph protocol.ProtocolHeader) (*protocol.BlockHeader, error) {
	pred, err := common.ParseHash(sh.Predecessor)
	if err != nil {
		return nil, fmt.Errorf("shell predecessor: %w", err)
	}
	opsHash, err := common.DecodeBase58Check(common.OperationListListHashPrefix, sh.OperationsHash)
	if err != nil {
		return nil, fmt.Errorf("shell operations hash: %w", err)
	}
	contextHash, err := common.DecodeBase58Check(common.ContextHashPrefix, sh.Context)
	if err != nil {
		return nil, fmt.Errorf("shell context: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, sh.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("shell timestamp: %w", err)
	}
	fitness := make([][]byte, len(sh.Fitness))
	for i, f := range sh.Fitness {
		fitness[i], err = hex.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("shell fitness: %w", err)
		}
	}
	header := &protocol.BlockHeader{
		Level:          sh.Level,
		Proto:          sh.Proto,
		Predecessor:    pred,
		Timestamp:      ts.Unix(),
		ValidationPass: sh.ValidationPass,
		Fitness:        fitness,
		ProtocolHeader: ph,
	}
	copy(header.OperationsHash[:], opsHash)
	copy(header.Context[:], contextHash)
	return header, nil
}
