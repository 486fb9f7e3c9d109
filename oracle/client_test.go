package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/evmcommon"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func newStubServer(t *testing.T, responder func(method string) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := responder(req.Method)
		resp := rpcResponse{Error: rpcErr}
		if rpcErr == nil {
			b, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = b
		}
		full := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(resp.Result)}
		if rpcErr != nil {
			full["error"] = rpcErr
			delete(full, "result")
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(full))
	}))
}

func TestClientStorageAt(t *testing.T) {
	srv := newStubServer(t, func(method string) (any, *rpcError) {
		require.Equal(t, "eth_getStorageAt", method)
		return "0x000000000000000000000000000000000000000000000000000000000000002a", nil
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.StorageAt(context.Background(), evmcommon.HexToAddress("0x01"), evmcommon.HexToHash("0x00"), SidePost)
	require.NoError(t, err)
	require.Equal(t, evmcommon.HexToHash("0x2a"), got)
}

func TestClientIntrinsics(t *testing.T) {
	srv := newStubServer(t, func(method string) (any, *rpcError) {
		switch method {
		case "eth_getTransactionCount":
			return "0x5", nil
		case "eth_getBalance":
			return "0x0de0b6b3a7640000", nil
		case "eth_getCode":
			return "0x", nil
		default:
			t.Fatalf("unexpected method %s", method)
			return nil, nil
		}
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Intrinsics(context.Background(), evmcommon.HexToAddress("0x01"), SidePre)
	require.NoError(t, err)
	require.Equal(t, uint64(5), got.Nonce)
}

func TestClientPollNewTransactionsFiltersByAddress(t *testing.T) {
	watched := evmcommon.HexToAddress("0xdead")
	other := evmcommon.HexToAddress("0xff").Hex()
	txHash := evmcommon.HexToHash("0x11").Hex()

	srv := newStubServer(t, func(method string) (any, *rpcError) {
		switch method {
		case "eth_blockNumber":
			return "0x2", nil
		case "eth_getBlockByNumber":
			return rpcBlock{
				Number: "0x2",
				Transactions: []rpcTransaction{
					{Hash: txHash, From: watched.Hex(), To: &other},
					{Hash: "0x22", From: other, To: &other},
				},
			}, nil
		default:
			t.Fatalf("unexpected method %s", method)
			return nil, nil
		}
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	latest, txs, err := c.PollNewTransactions(context.Background(), watched, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), latest)
	require.Len(t, txs, 1)
	require.Equal(t, evmcommon.HexToHash("0x11"), *txs[0].TxHash)
}

func TestClientPollNewTransactionsSeedsFromHeadWhenLastBlockZero(t *testing.T) {
	srv := newStubServer(t, func(method string) (any, *rpcError) {
		require.Equal(t, "eth_blockNumber", method)
		return "0x9", nil
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	latest, txs, err := c.PollNewTransactions(context.Background(), evmcommon.HexToAddress("0xdead"), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(9), latest)
	require.Empty(t, txs)
}

func TestClientPropagatesRPCError(t *testing.T) {
	srv := newStubServer(t, func(method string) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "boom"}
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.StorageAt(context.Background(), evmcommon.HexToAddress("0x01"), evmcommon.HexToHash("0x00"), SidePost)
	require.Error(t, err)
	var unavailable *OracleUnavailable
	require.ErrorAs(t, err, &unavailable)
}
