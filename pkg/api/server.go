package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/flashdex/pkg/app/core/mempool"
	"github.com/uhyunpark/flashdex/pkg/app/dex"
	"github.com/uhyunpark/flashdex/pkg/exchange"
	"github.com/uhyunpark/flashdex/pkg/metrics"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

// MaxTxBodyBytes caps a submitted transaction.
const MaxTxBodyBytes = 64 << 10

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// TxLogDir receives transactions.log, one JSON line per submission.
	// Empty disables the log.
	TxLogDir       string
	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	app     *dex.App
	router  *mux.Router
	hub     *Hub
	logger  *zap.Logger
	metrics *metrics.Metrics
	origins []string

	txLogMu sync.Mutex
	txLog   *os.File
}

// NewServer creates a new API server
func NewServer(app *dex.App, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		logger:  logger,
		metrics: opts.Metrics,
		origins: opts.AllowedOrigins,
	}

	if opts.TxLogDir != "" {
		path := filepath.Join(opts.TxLogDir, "transactions.log")
		if err := os.MkdirAll(opts.TxLogDir, 0o755); err != nil {
			logger.Warn("tx_log_disabled", zap.String("path", path), zap.Error(err))
		} else if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
			// Continue without tx logging
			logger.Warn("tx_log_disabled", zap.String("path", path), zap.Error(err))
		} else {
			s.txLog = f
			logger.Info("tx_log", zap.String("path", path))
		}
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")

	api.HandleFunc("/balances/{owner}", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/balances/{owner}/{asset}", s.handleGetBalance).Methods("GET")

	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	api.HandleFunc("/accounts", s.handleGetAccounts).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")

	// Signed transaction submission
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	allowedOrigins := s.origins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api_listen", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the transaction log.
func (s *Server) Close() error {
	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()
	if s.txLog == nil {
		return nil
	}
	err := s.txLog.Close()
	s.txLog = nil
	return err
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, exchangeInfo(s.app.Exchange()))
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.app.Tokens()
	response := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		response[i] = tokenInfo(t)
	}
	respondJSON(w, response)
}

func (s *Server) balanceOf(t dex.TokenInfo, owner common.Address) BalanceInfo {
	return BalanceInfo{
		Asset:  t.Address.Hex(),
		Symbol: t.Symbol,
		Ledger: amountOf(s.app.TotalBalanceOf(t.Address, owner), t.Decimals),
		Wallet: amountOf(s.app.TokenBalance(t.Address, owner), t.Decimals),
	}
}

func (s *Server) balancesOf(owner common.Address) []BalanceInfo {
	tokens := s.app.Tokens()
	out := make([]BalanceInfo, len(tokens))
	for i, t := range tokens {
		out[i] = s.balanceOf(t, owner)
	}
	return out
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressVar(w, r, "owner")
	if !ok {
		return
	}
	respondJSON(w, s.balancesOf(owner))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressVar(w, r, "owner")
	if !ok {
		return
	}
	t, err := s.app.ResolveAsset(mux.Vars(r)["asset"])
	if err != nil {
		respondError(w, http.StatusNotFound, "asset not found", err.Error())
		return
	}
	respondJSON(w, s.balanceOf(t, owner))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	var filter exchange.OrderFilter
	q := r.URL.Query()
	if v := q.Get("creator"); v != "" {
		if !common.IsHexAddress(v) {
			respondError(w, http.StatusBadRequest, "invalid creator", v)
			return
		}
		filter.Creator = common.HexToAddress(v)
	}
	if v := q.Get("status"); v != "" {
		st, err := exchange.ParseOrderStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid status", err.Error())
			return
		}
		filter.Status = &st
	}

	orders, err := s.app.Orders(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list orders", err.Error())
		return
	}
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, err := s.app.Order(id)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order not found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load order", err.Error())
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	nonce := s.app.Nonce(addr)
	respondJSON(w, AccountInfo{
		Address:   addr.Hex(),
		Nonce:     nonce,
		NextNonce: nonce + 1,
		Balances:  s.balancesOf(addr),
	})
}

func (s *Server) handleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.app.Accounts()
	response := make([]AccountSummary, len(accounts))
	for i, a := range accounts {
		response[i] = AccountSummary{Address: a.Address.Hex(), Nonce: a.Nonce}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	st := s.app.Status()
	respondJSON(w, ChainStatus{
		Height:      st.Height,
		Timestamp:   st.Timestamp,
		AppHash:     st.AppHashHex,
		MempoolSize: st.MempoolSize,
	})
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxTxBodyBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	if len(body) > MaxTxBodyBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "transaction too large", fmt.Sprintf("limit %d bytes", MaxTxBodyBytes))
		return
	}

	txHash, err := s.app.PushTx(body)
	switch {
	case errors.Is(err, mempool.ErrFull):
		respondError(w, http.StatusServiceUnavailable, "mempool full", err.Error())
		return
	case errors.Is(err, mempool.ErrDuplicate):
		respondError(w, http.StatusConflict, "duplicate transaction", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}

	id := uuid.NewString()
	s.logger.Debug("tx_submitted", zap.String("id", id), zap.String("tx", txHash), zap.Int("bytes", len(body)))
	s.logTransaction("TX_SUBMIT", map[string]interface{}{
		"submission_id": id,
		"tx_hash":       txHash,
		"tx":            json.RawMessage(body),
	})

	respondJSONStatus(w, http.StatusAccepted, SubmitTxResponse{Status: "submitted", TxHash: txHash, SubmissionID: id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called after each block)
// ==============================

// BroadcastReceipts pushes each receipt to its sender's channel and each
// event of a successful tx to "events" and "events:<sender>".
func (s *Server) BroadcastReceipts(height uint64, receipts []dex.Receipt) {
	for _, rc := range receipts {
		if rc.Sender == (common.Address{}) {
			continue
		}
		senderCh := eventsChannel(rc.Sender)
		s.hub.BroadcastToChannel(senderCh, ReceiptUpdate{Type: "receipt", Receipt: receiptInfo(rc)})

		for _, ev := range rc.Events {
			update := EventUpdate{
				Type:    "event",
				Height:  height,
				TxHash:  rc.TxHash,
				Sender:  rc.Sender.Hex(),
				Name:    ev.Name,
				Emitter: ev.Emitter.Hex(),
				Data:    ev.Data,
			}
			s.hub.BroadcastToChannel(channelEvents, update)
			s.hub.BroadcastToChannel(senderCh, update)
		}
	}
}

// BroadcastBlock announces a committed block on the "blocks" channel.
func (s *Server) BroadcastBlock(b sequencer.Block, txs int) {
	s.hub.BroadcastToChannel(channelBlocks, BlockUpdate{
		Type:      "block",
		Height:    uint64(b.Height),
		Timestamp: b.Time.Unix(),
		AppHash:   "0x" + b.AppHash.String(),
		Txs:       txs,
	})
}

// ==============================
// Helper Functions
// ==============================

// addressVar parses a path variable as an address, answering 400 if it
// is not one.
func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid address", v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// logTransaction writes a transaction event to the log file
func (s *Server) logTransaction(eventType string, data map[string]interface{}) {
	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()
	if s.txLog == nil {
		return // Logging disabled
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     eventType,
		"data":      data,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("tx_log_marshal", zap.Error(err))
		return
	}

	// One JSON object per line
	s.txLog.Write(append(jsonData, '\n'))
}
