package main

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/erigon-lib/log/v3"

	slotlens "github.com/bytesentry/slotlens"
	"github.com/bytesentry/slotlens/evmcommon"
)

// requestIDHeader is the header the HTTP facade stamps on every response so
// an operator can correlate a trace call with a log line (SUPPLEMENTED
// "minimal HTTP facade").
const requestIDHeader = "X-Slotlens-Request-Id"

// runServe implements `slotlens serve`: a minimal HTTP facade around
// traceStorageAccess, one request per call (spec.md §6, SUPPLEMENTED
// "minimal HTTP facade"), grounded in the teacher's chi.NewRouter /
// http.Server ListenAndServe idiom.
func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	listenAddr := c.String(listenFlag.Name)
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	defer listener.Close()

	mux := chi.NewRouter()
	mux.Use(requestIDMiddleware)
	mux.Post("/v1/trace", traceHandler(analyzer))

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("slotlens serve: listening", "addr", listener.Addr().String())
	return server.Serve(listener)
}

func requestIDMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(requestIDHeader, id)
		h.ServeHTTP(w, r)
	})
}

// traceRequest is the wire shape of a POST /v1/trace body — it mirrors
// TransactionInput's three mutually-exclusive shapes (spec.md §6).
type traceRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Data         string `json:"data,omitempty"`
	ABIJSON      string `json:"abi,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
	Args         []any  `json:"args,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
}

func traceHandler(analyzer *slotlens.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := w.Header().Get(requestIDHeader)

		var req traceRequest
		if err := jsonOut.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "slotlens: malformed request body", http.StatusBadRequest)
			return
		}

		tx := slotlens.TransactionInput{From: evmcommon.HexToAddress(req.From)}
		if req.To != "" {
			to := evmcommon.HexToAddress(req.To)
			tx.To = &to
		}
		switch {
		case req.TxHash != "":
			hash := evmcommon.HexToHash(req.TxHash)
			tx.TxHash = &hash
		case req.FunctionName != "":
			tx.ABIJSON = []byte(req.ABIJSON)
			tx.FunctionName = req.FunctionName
			tx.Args = req.Args
		default:
			tx.Data = evmcommon.FromHex(req.Data)
		}

		traces, traceErr := analyzer.TraceStorageAccess(r.Context(), tx)
		if traceErr != nil && traces == nil {
			log.Warn("slotlens serve: trace failed", "request_id", requestID, "err", traceErr)
			http.Error(w, traceErr.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if traceErr != nil {
			w.WriteHeader(http.StatusPartialContent)
		}
		if err := jsonOut.NewEncoder(w).Encode(traces); err != nil {
			log.Warn("slotlens serve: encode response", "request_id", requestID, "err", err)
		}
	}
}
