package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/protocol"
)

// Client talks to a single node endpoint. Point requests share one HTTP
// client with a conservative timeout; monitors use untimed streaming
// requests cancelled through their context.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	log    log.Logger
}

// NewClient returns a client for the given endpoint URL.
func NewClient(endpoint string) (*Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc: endpoint: %w", err)
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		stream: &http.Client{},
		log:    log.New("module", "rpc"),
	}, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(path string, query url.Values, out interface{}) error {
	resp, err := c.http.Get(c.url(path, query))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("rpc: GET %s: %s: %s", path, resp.Status, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(path string, query url.Values, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.url(path, query), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("rpc: POST %s: %s: %s", path, resp.Status, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ChainID fetches the chain identifier.
func (c *Client) ChainID() (common.ChainID, error) {
	var s string
	if err := c.get("/chains/main/chain_id", nil, &s); err != nil {
		return common.ChainID{}, err
	}
	return common.ParseChainID(s)
}

// Constants fetches the protocol constants of the current head.
func (c *Client) Constants() (*Constants, error) {
	constants := new(Constants)
	if err := c.get("/chains/main/blocks/head/context/constants", nil, constants); err != nil {
		return nil, err
	}
	return constants, nil
}

// Validators fetches the baking-rights listing for a level.
func (c *Client) Validators(level int32) ([]ValidatorSlots, error) {
	q := url.Values{"level": {fmt.Sprint(level)}}
	var out []ValidatorSlots
	if err := c.get("/chains/main/blocks/head/helpers/validators", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Block resolves a head hash into a full Block: header fields plus the four
// operation sublists.
func (c *Client) Block(hash string) (*Block, error) {
	var hdr headerJSON
	if err := c.get("/chains/main/blocks/"+hash+"/header", nil, &hdr); err != nil {
		return nil, err
	}
	var ops [][]*protocol.Operation
	if err := c.get("/chains/main/blocks/"+hash+"/operations", nil, &ops); err != nil {
		return nil, err
	}
	return blockFromParts(&hdr, ops)
}

func blockFromParts(hdr *headerJSON, ops [][]*protocol.Operation) (*Block, error) {
	h, err := common.ParseHash(hdr.Hash)
	if err != nil {
		return nil, fmt.Errorf("rpc: head hash: %w", err)
	}
	pred, err := common.ParseHash(hdr.Predecessor)
	if err != nil {
		return nil, fmt.Errorf("rpc: predecessor: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, hdr.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("rpc: timestamp: %w", err)
	}
	round, err := protocol.RoundFromFitness(hdr.Fitness)
	if err != nil {
		return nil, fmt.Errorf("rpc: fitness: %w", err)
	}
	block := &Block{
		Hash:         h,
		Predecessor:  pred,
		Level:        hdr.Level,
		Proto:        hdr.Proto,
		Timestamp:    ts,
		PayloadRound: hdr.PayloadRound,
		Round:        round,
		Operations:   ops,
	}
	if hdr.PayloadHash != "" {
		ph, err := common.ParsePayloadHash(hdr.PayloadHash)
		if err != nil {
			return nil, fmt.Errorf("rpc: payload hash: %w", err)
		}
		block.PayloadHash = ph
	}
	return block, nil
}

// InjectOperation injects a signed operation and returns its hash.
func (c *Client) InjectOperation(chainID common.ChainID, signed []byte) (string, error) {
	q := url.Values{"chain": {chainID.String()}}
	var hash string
	body := hexutil.Encode(signed)[2:]
	if err := c.post("/injection/operation", q, body, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// PreapplyBlock asks the node to finalize a block draft.
func (c *Client) PreapplyBlock(req *PreapplyRequest, timestamp int64) (*PreapplyResult, error) {
	q := url.Values{"timestamp": {fmt.Sprint(timestamp)}}
	result := new(PreapplyResult)
	if err := c.post("/chains/main/blocks/head/helpers/preapply/block", q, req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// InjectBlock injects a signed header with its operation lists and returns
// the block hash.
func (c *Client) InjectBlock(signedHeader []byte, ops [][]InjectOperation) (string, error) {
	in := struct {
		Data       string              `json:"data"`
		Operations [][]InjectOperation `json:"operations"`
	}{
		Data:       hexutil.Encode(signedHeader)[2:],
		Operations: ops,
	}
	var hash string
	if err := c.post("/injection/block", nil, in, &hash); err != nil {
		return "", err
	}
	return hash, nil
}
