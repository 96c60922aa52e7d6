package solana

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Commitment selects how finalized a queried state must be.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// DefaultEndpoint is the public mainnet RPC endpoint.
const DefaultEndpoint = "https://api.mainnet-beta.solana.com"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

// rpcNodeBehind is returned by getHealth when the node has fallen behind the
// cluster.
const rpcNodeBehind = -32005

// VersionInfo describes the software running on an RPC node.
type VersionInfo struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

// commitmentConfig is the standard trailing params object for state queries.
type commitmentConfig struct {
	Commitment Commitment `json:"commitment,omitempty"`
}

// AccountInfo is the account payload returned by account queries.
type AccountInfo struct {
	Lamports   uint64          `json:"lamports"`
	Owner      string          `json:"owner"`
	Data       json.RawMessage `json:"data"`
	Executable bool            `json:"executable"`
	RentEpoch  uint64          `json:"rentEpoch"`
}

// Bytes decodes the account data payload. The RPC encodes base64 data as a
// ["<data>", "base64"] tuple; legacy servers answer with a bare string.
func (a AccountInfo) Bytes() ([]byte, error) {
	var tuple []string
	if err := json.Unmarshal(a.Data, &tuple); err == nil {
		if len(tuple) == 0 {
			return nil, nil
		}
		return base64.StdEncoding.DecodeString(tuple[0])
	}
	var raw string
	if err := json.Unmarshal(a.Data, &raw); err != nil {
		return nil, fmt.Errorf("solana: undecodable account data: %w", err)
	}
	return base64.StdEncoding.DecodeString(raw)
}

// KeyedAccount pairs an account with its address, as returned by
// getProgramAccounts.
type KeyedAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account AccountInfo `json:"account"`
}

// accountQueryConfig is the trailing params object for account fetches.
type accountQueryConfig struct {
	Commitment Commitment `json:"commitment,omitempty"`
	Encoding   string     `json:"encoding,omitempty"`
}

// multipleAccountsResult unwraps the context envelope of getMultipleAccounts.
type multipleAccountsResult struct {
	Value []*AccountInfo `json:"value"`
}

// programAccountsConfig narrows a getProgramAccounts scan.
type programAccountsConfig struct {
	Commitment Commitment      `json:"commitment,omitempty"`
	Encoding   string          `json:"encoding,omitempty"`
	Filters    []accountFilter `json:"filters,omitempty"`
}

type accountFilter struct {
	DataSize uint64     `json:"dataSize,omitempty"`
	Memcmp   *memcmpRef `json:"memcmp,omitempty"`
}

type memcmpRef struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"`
}

// LogBatch is one transaction's worth of program log output delivered by a
// logs subscription.
type LogBatch struct {
	Slot      uint64
	Signature string
	Failed    bool // the transaction itself errored
	Logs      []string
}

// Wire shapes for logsSubscribe notifications.
type logsNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  *struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params,omitempty"`
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcErrorBody   `json:"error,omitempty"`
}

// logsFilter selects which transactions a logs subscription observes.
type logsFilter struct {
	Mentions []string `json:"mentions"`
}
