package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/keyoracle"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the JSON-RPC ExecutionOracle: it simulates or replays a
// transaction against a remote node's debug/eth namespaces and reports its
// access list, execution trace, and pre/post account state (spec.md §6).
// The EVM itself is never run in-process; this is the sole network
// boundary the rest of the module talks through (spec.md §1).
type Client struct {
	http     *retryablehttp.Client
	endpoint string
	nextID   atomic.Int64
}

// NewClient builds a Client against a JSON-RPC endpoint.
func NewClient(endpoint string) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 250 * time.Millisecond
	hc.RetryWaitMax = 3 * time.Second
	hc.Logger = nil
	return &Client{http: hc, endpoint: endpoint}
}

// OracleUnavailable wraps a transport-level failure talking to the node;
// callers should retry (spec.md §7).
type OracleUnavailable struct {
	Op  string
	Err error
}

func (e *OracleUnavailable) Error() string { return fmt.Sprintf("oracle: %s: %v", e.Op, e.Err) }
func (e *OracleUnavailable) Unwrap() error { return e.Err }

// SimulationReverted is returned when the EVM rejected the transaction; the
// partial access list gathered up to the revert is returned alongside the
// error so the caller can still inspect reverted-but-accessed slots
// (spec.md §7, best-effort).
type SimulationReverted struct {
	Reason  string
	Partial SimulationResult
}

func (e *SimulationReverted) Error() string { return fmt.Sprintf("oracle: reverted: %s", e.Reason) }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	body, err := jsonAPI.Marshal(req)
	if err != nil {
		return &OracleUnavailable{Op: method, Err: err}
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &OracleUnavailable{Op: method, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &OracleUnavailable{Op: method, Err: err}
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return &OracleUnavailable{Op: method, Err: err}
	}
	if rpcResp.Error != nil {
		return &OracleUnavailable{Op: method, Err: fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := jsonAPI.Unmarshal(rpcResp.Result, out); err != nil {
		return &OracleUnavailable{Op: method, Err: err}
	}
	return nil
}

// StorageAt implements ExecutionOracle.
func (c *Client) StorageAt(ctx context.Context, account evmcommon.Address, slot evmcommon.Hash, side SlotSide) (evmcommon.Hash, error) {
	block := blockTag(side)
	var raw string
	if err := c.call(ctx, "eth_getStorageAt", []any{account.Hex(), slot.Hex(), block}, &raw); err != nil {
		return evmcommon.Hash{}, err
	}
	return evmcommon.HexToHash(raw), nil
}

// Intrinsics implements ExecutionOracle.
func (c *Client) Intrinsics(ctx context.Context, account evmcommon.Address, side SlotSide) (IntrinsicState, error) {
	block := blockTag(side)

	var nonceHex, balanceHex, codeHex string
	if err := c.call(ctx, "eth_getTransactionCount", []any{account.Hex(), block}, &nonceHex); err != nil {
		return IntrinsicState{}, err
	}
	if err := c.call(ctx, "eth_getBalance", []any{account.Hex(), block}, &balanceHex); err != nil {
		return IntrinsicState{}, err
	}
	if err := c.call(ctx, "eth_getCode", []any{account.Hex(), block}, &codeHex); err != nil {
		return IntrinsicState{}, err
	}

	nonce := new(uint256.Int)
	_ = nonce.SetFromHex(orZero(nonceHex))
	return IntrinsicState{
		Nonce:    nonce.Uint64(),
		Balance:  evmcommon.HexToHash(balanceHex),
		CodeHash: evmcommon.Keccak256Hash(evmcommon.FromHex(codeHex)),
	}, nil
}

// blockTag maps a SlotSide to the block-parameter string a JSON-RPC method
// expects: "pending" observes state before this client's own in-flight
// simulation commits, "latest" observes it after.
func blockTag(side SlotSide) string {
	if side == SidePre {
		return "pending"
	}
	return "latest"
}

func orZero(hex string) string {
	if hex == "" {
		return "0x0"
	}
	return hex
}

// Simulate implements ExecutionOracle. Historical replays (tx.TxHash set)
// use debug_traceTransaction; synthetic calls use debug_traceCall. Both are
// run twice with different tracers: prestateTracer in diff mode yields the
// per-account access list plus pre/post storage and intrinsic state in one
// pass; the struct-logger tracer (with stack capture) separately feeds
// KeyOracle's candidate-key extraction.
func (c *Client) Simulate(ctx context.Context, tx TransactionInput) (SimulationResult, error) {
	callArgs := toCallArgs(tx)

	diff, err := c.traceDiff(ctx, tx, callArgs)
	if err != nil {
		return SimulationResult{}, err
	}
	steps, err := c.traceStack(ctx, tx, callArgs)
	reverted, isRevert := err.(*SimulationReverted)
	if err != nil && !isRevert {
		return SimulationResult{}, err
	}

	result := SimulationResult{
		AccessList:    make(map[evmcommon.Address][]evmcommon.Hash),
		Trace:         steps,
		IntrinsicPre:  make(map[evmcommon.Address]IntrinsicState),
		IntrinsicPost: make(map[evmcommon.Address]IntrinsicState),
	}
	if tx.TxHash != nil {
		result.TxHash = *tx.TxHash
	}

	for addr, accountDiff := range diff {
		for slot := range accountDiff.Storage {
			result.AccessList[addr] = append(result.AccessList[addr], slot)
		}
		result.IntrinsicPre[addr] = accountDiff.pre()
		result.IntrinsicPost[addr] = accountDiff.post()
	}

	if isRevert {
		result.Reverted = true
		result.RevertReason = reverted.Reason
		reverted.Partial = result
		return SimulationResult{}, reverted
	}
	return result, nil
}

// prestateAccountDiff is one account's entry in prestateTracer's diffMode
// output: { pre: {...}, post: {...} }, each optionally carrying balance,
// nonce, code, and a storage slot map.
type prestateAccountDiff struct {
	Pre     prestateSide `json:"pre"`
	Post    prestateSide `json:"post"`
	Storage map[evmcommon.Hash]struct{ Pre, Post evmcommon.Hash }
}

type prestateSide struct {
	Balance string            `json:"balance"`
	Nonce   *uint64           `json:"nonce"`
	Code    string            `json:"code"`
	Storage map[string]string `json:"storage"`
}

func (d prestateAccountDiff) pre() IntrinsicState  { return intrinsicFromSide(d.Pre) }
func (d prestateAccountDiff) post() IntrinsicState { return intrinsicFromSide(d.Post) }

func intrinsicFromSide(s prestateSide) IntrinsicState {
	var nonce uint64
	if s.Nonce != nil {
		nonce = *s.Nonce
	}
	return IntrinsicState{
		Nonce:    nonce,
		Balance:  evmcommon.HexToHash(orZero(s.Balance)),
		CodeHash: evmcommon.Keccak256Hash(evmcommon.FromHex(s.Code)),
	}
}

type diffModeResult struct {
	Pre  map[string]prestateSide `json:"pre"`
	Post map[string]prestateSide `json:"post"`
}

func (c *Client) traceDiff(ctx context.Context, tx TransactionInput, callArgs CallArgs) (map[evmcommon.Address]prestateAccountDiff, error) {
	tracerConfig := map[string]any{
		"tracer":       "prestateTracer",
		"tracerConfig": map[string]any{"diffMode": true},
	}

	var raw diffModeResult
	if err := c.runTracer(ctx, tx, callArgs, tracerConfig, &raw); err != nil {
		return nil, err
	}

	out := make(map[evmcommon.Address]prestateAccountDiff)
	for addrHex, pre := range raw.Pre {
		addr := evmcommon.HexToAddress(addrHex)
		d := out[addr]
		d.Pre = pre
		d.Storage = mergeStorage(d.Storage, pre.Storage, true)
		out[addr] = d
	}
	for addrHex, post := range raw.Post {
		addr := evmcommon.HexToAddress(addrHex)
		d := out[addr]
		d.Post = post
		d.Storage = mergeStorage(d.Storage, post.Storage, false)
		out[addr] = d
	}
	return out, nil
}

func mergeStorage(dst map[evmcommon.Hash]struct{ Pre, Post evmcommon.Hash }, side map[string]string, isPre bool) map[evmcommon.Hash]struct{ Pre, Post evmcommon.Hash } {
	if dst == nil {
		dst = make(map[evmcommon.Hash]struct{ Pre, Post evmcommon.Hash })
	}
	for slotHex, valHex := range side {
		slot := evmcommon.HexToHash(slotHex)
		entry := dst[slot]
		if isPre {
			entry.Pre = evmcommon.HexToHash(valHex)
		} else {
			entry.Post = evmcommon.HexToHash(valHex)
		}
		dst[slot] = entry
	}
	return dst
}

type structLogTrace struct {
	Failed      bool   `json:"failed"`
	ReturnValue string `json:"returnValue"`
	StructLogs  []struct {
		Stack []string `json:"stack"`
	} `json:"structLogs"`
}

func (c *Client) traceStack(ctx context.Context, tx TransactionInput, callArgs CallArgs) ([]keyoracle.TraceStep, error) {
	tracerConfig := map[string]any{
		"enableMemory":     false,
		"disableStack":     false,
		"disableStorage":   true,
		"enableReturnData": false,
	}

	var raw structLogTrace
	if err := c.runTracer(ctx, tx, callArgs, tracerConfig, &raw); err != nil {
		return nil, err
	}
	if raw.Failed {
		return nil, &SimulationReverted{Reason: "execution reverted"}
	}

	steps := make([]keyoracle.TraceStep, 0, len(raw.StructLogs))
	for _, log := range raw.StructLogs {
		stack := make([]evmcommon.Hash, 0, len(log.Stack))
		for _, word := range log.Stack {
			stack = append(stack, evmcommon.HexToHash(word))
		}
		steps = append(steps, keyoracle.TraceStep{Stack: stack})
	}
	return steps, nil
}

func (c *Client) runTracer(ctx context.Context, tx TransactionInput, callArgs CallArgs, tracerConfig any, out any) error {
	if tx.TxHash != nil {
		return c.call(ctx, "debug_traceTransaction", []any{tx.TxHash.Hex(), tracerConfig}, out)
	}
	return c.call(ctx, "debug_traceCall", []any{callArgs, "latest", tracerConfig}, out)
}

func toCallArgs(tx TransactionInput) CallArgs {
	args := CallArgs{From: tx.From.Hex()}
	if tx.To != nil {
		args.To = tx.To.Hex()
	}
	if len(tx.Data) > 0 {
		args.Data = "0x" + hexEncode(tx.Data)
	}
	if tx.Value != nil {
		args.Value = tx.Value.Hex()
	}
	return args
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

// BlockWatcher is an optional capability an ExecutionOracle implementation
// may offer: polling a node for transactions touching an address in blocks
// newer than lastBlock. It is the minimal seam watchStorage needs to
// discover work (spec.md §6); it is deliberately not part of the
// ExecutionOracle interface itself, since a test fixture built directly
// from a SimulationResult has no node to poll.
type BlockWatcher interface {
	PollNewTransactions(ctx context.Context, address evmcommon.Address, lastBlock uint64) (latestBlock uint64, txs []TransactionInput, err error)
}

type rpcTransaction struct {
	Hash string  `json:"hash"`
	From string  `json:"from"`
	To   *string `json:"to"`
}

type rpcBlock struct {
	Number       string           `json:"number"`
	Transactions []rpcTransaction `json:"transactions"`
}

// PollNewTransactions implements BlockWatcher by fetching every full block
// between lastBlock+1 and the chain head and keeping the transactions whose
// From or To matches address. A lastBlock of 0 starts from the current
// head, observing only transactions mined after the watch begins.
func (c *Client) PollNewTransactions(ctx context.Context, address evmcommon.Address, lastBlock uint64) (uint64, []TransactionInput, error) {
	var latestHex string
	if err := c.call(ctx, "eth_blockNumber", nil, &latestHex); err != nil {
		return lastBlock, nil, err
	}
	latest := hexToUint64(latestHex)

	if lastBlock == 0 {
		return latest, nil, nil
	}
	if latest <= lastBlock {
		return lastBlock, nil, nil
	}

	var txs []TransactionInput
	for n := lastBlock + 1; n <= latest; n++ {
		var block rpcBlock
		tag := "0x" + strconv.FormatUint(n, 16)
		if err := c.call(ctx, "eth_getBlockByNumber", []any{tag, true}, &block); err != nil {
			return lastBlock, nil, err
		}
		for _, tx := range block.Transactions {
			if !transactionTouches(tx, address) {
				continue
			}
			h := evmcommon.HexToHash(tx.Hash)
			txs = append(txs, TransactionInput{TxHash: &h})
		}
	}
	return latest, txs, nil
}

func transactionTouches(tx rpcTransaction, address evmcommon.Address) bool {
	want := address.Hex()
	if tx.From == want {
		return true
	}
	return tx.To != nil && *tx.To == want
}

func hexToUint64(h string) uint64 {
	n := new(uint256.Int)
	_ = n.SetFromHex(orZero(h))
	return n.Uint64()
}
