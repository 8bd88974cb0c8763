package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/protocol"
)

// WaitBootstrapped blocks until the node reports itself synced.
func (c *Client) WaitBootstrapped(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/monitor/bootstrapped", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc: bootstrapped: %s", resp.Status)
	}
	var status struct {
		Block     string `json:"block"`
		Timestamp string `json:"timestamp"`
	}
	// the monitor streams one status object per sync step and closes the
	// stream once the node is bootstrapped
	dec := json.NewDecoder(resp.Body)
	for {
		if err := dec.Decode(&status); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// MonitorHeads streams new heads. Each monitor line is completed into a full
// Block with follow-up requests before delivery. The channel closes when the
// stream ends or ctx is cancelled; a terminal error is delivered first.
func (c *Client) MonitorHeads(ctx context.Context, chainID common.ChainID) (<-chan HeadEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/monitor/heads/"+chainID.String(), nil), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("rpc: monitor heads: %s", resp.Status)
	}
	out := make(chan HeadEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for {
			var line headLine
			if err := dec.Decode(&line); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					out <- HeadEvent{Err: err}
				}
				return
			}
			block, err := c.Block(line.Hash)
			if err != nil {
				c.log.Error("resolving head failed", "hash", line.Hash, "err", err)
				continue
			}
			select {
			case out <- HeadEvent{Block: block}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// MonitorOperations streams mempool operation batches. The node terminates
// the stream on every head change; the caller resubscribes per head.
func (c *Client) MonitorOperations(ctx context.Context) (<-chan OperationsEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/chains/main/mempool/monitor_operations", nil), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("rpc: monitor operations: %s", resp.Status)
	}
	out := make(chan OperationsEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for {
			var batch []*protocol.Operation
			if err := dec.Decode(&batch); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					out <- OperationsEvent{Err: err}
				}
				return
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case out <- OperationsEvent{Operations: batch}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
