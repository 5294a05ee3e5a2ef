package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/flashdex/params"
	"github.com/uhyunpark/flashdex/pkg/abci"
	"github.com/uhyunpark/flashdex/pkg/app/dex"
	"github.com/uhyunpark/flashdex/pkg/metrics"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

type testEnv struct {
	app    *dex.App
	gen    *dex.SignedTxGenerator
	server *Server
	http   *httptest.Server
	txLog  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := metrics.New()
	app, err := dex.NewApp(params.Default(), dex.WithMetrics(m))
	require.NoError(t, err)
	gen, err := dex.NewSignedTxGenerator(app, 2, 1)
	require.NoError(t, err)

	dir := t.TempDir()
	s := NewServer(app, Options{Metrics: m, TxLogDir: dir})
	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		s.Close()
	})
	return &testEnv{app: app, gen: gen, server: s, http: ts, txLog: filepath.Join(dir, "transactions.log")}
}

// seed executes the seed scenario as block 1.
func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	txs, err := e.gen.SeedTxs()
	require.NoError(t, err)
	_, err = e.app.FinalizeBlock(abci.RequestFinalizeBlock{Height: 1, Timestamp: 1_700_000_001, Txs: txs})
	require.NoError(t, err)
}

func (e *testEnv) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndExchange(t *testing.T) {
	e := newTestEnv(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, e.get(t, "/health", &health))
	assert.Equal(t, "ok", health["status"])

	var ex ExchangeInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/exchange", &ex))
	assert.Equal(t, e.app.ExchangeAddress().Hex(), ex.Address)
	assert.Equal(t, uint64(10), ex.FeePercent)
	assert.Equal(t, int64(1337), ex.ChainID)

	var tokens []TokenInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/tokens", &tokens))
	require.Len(t, tokens, 3)
	assert.Equal(t, "IPT", tokens[0].Symbol)
	assert.Equal(t, "10000000000000000000000", tokens[0].Reserve)
}

func TestBalancesAndOrders(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t)
	user1 := e.gen.Traders()[0].Address()

	var balances []BalanceInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/balances/"+user1.Hex(), &balances))
	require.Len(t, balances, 3)

	var ipt BalanceInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/balances/"+user1.Hex()+"/IPT", &ipt))
	assert.Equal(t, "99970", ipt.Ledger.Formatted)
	assert.Equal(t, "IPT", ipt.Symbol)

	require.Equal(t, http.StatusNotFound, e.get(t, "/api/v1/balances/"+user1.Hex()+"/NOPE", nil))
	require.Equal(t, http.StatusBadRequest, e.get(t, "/api/v1/balances/not-an-address", nil))

	var open []OrderInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/orders?status=open&creator="+user1.Hex(), &open))
	assert.Len(t, open, 5)
	for _, o := range open {
		assert.Equal(t, "open", o.Status)
		assert.Equal(t, user1.Hex(), o.Creator)
	}

	var filled OrderInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/orders/2", &filled))
	assert.Equal(t, "filled", filled.Status)
	assert.Equal(t, e.gen.Traders()[1].Address().Hex(), filled.Filler)

	require.Equal(t, http.StatusNotFound, e.get(t, "/api/v1/orders/999", nil))
	require.Equal(t, http.StatusBadRequest, e.get(t, "/api/v1/orders/abc", nil))
	require.Equal(t, http.StatusBadRequest, e.get(t, "/api/v1/orders?status=pending", nil))

	var acct AccountInfo
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/accounts/"+user1.Hex(), &acct))
	assert.Equal(t, e.app.Nonce(user1), acct.Nonce)
	assert.Equal(t, acct.Nonce+1, acct.NextNonce)

	var accounts []AccountSummary
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/accounts", &accounts))
	assert.Len(t, accounts, 3) // deployer and both traders

	var st ChainStatus
	require.Equal(t, http.StatusOK, e.get(t, "/api/v1/chain/status", &st))
	assert.Equal(t, uint64(1), st.Height)
	assert.Equal(t, "0x"+e.app.AppHash().String(), st.AppHash)
}

func TestSubmitTx(t *testing.T) {
	e := newTestEnv(t)
	deployer := e.app.Deployer()
	ipt, err := e.app.ResolveAsset("IPT")
	require.NoError(t, err)
	raw, err := e.gen.Transfer(deployer, ipt.Address, e.gen.Traders()[0].Address(), ipt.TotalSupply)
	require.NoError(t, err)

	resp, err := http.Post(e.http.URL+"/api/v1/tx", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	var out SubmitTxResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "submitted", out.Status)
	assert.Equal(t, dex.TxHash(raw), out.TxHash)
	assert.NotEmpty(t, out.SubmissionID)
	assert.Equal(t, 1, e.app.MempoolSize())

	resp, err = http.Post(e.http.URL+"/api/v1/tx", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(e.http.URL+"/api/v1/tx", "application/json", strings.NewReader(`{"type":"deposit"}`))
	require.NoError(t, err)
	var apiErr ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid transaction", apiErr.Error)

	logged, err := os.ReadFile(e.txLog)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(logged)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], out.SubmissionID)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t)

	resp, err := http.Get(e.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `flashdex_operations_total{code="ok",op="fill_order"} 3`)
	assert.Contains(t, buf.String(), "flashdex_block_height 1")
}

func TestWebSocketChannels(t *testing.T) {
	e := newTestEnv(t)
	e.app.OnReceipts = e.server.BroadcastReceipts

	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	user1 := e.gen.Traders()[0].Address()
	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"blocks", "events:" + user1.Hex()}}))

	read := func() map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	assert.Equal(t, "subscribed", read()["type"])

	e.seed(t)
	e.server.BroadcastBlock(sequencer.Block{Height: 1, Time: time.Unix(1_700_000_001, 0), AppHash: e.app.AppHash()}, 29)

	// user1's first tx is its approve; every message on its channel is for
	// user1 and the block announcement arrives last.
	var receipts, events int
	for {
		msg := read()
		if msg["type"] == "block" {
			assert.Equal(t, float64(1), msg["height"])
			break
		}
		switch msg["type"] {
		case "receipt":
			receipts++
			rc := msg["receipt"].(map[string]interface{})
			assert.Equal(t, user1.Hex(), rc["sender"])
		case "event":
			events++
			assert.Equal(t, user1.Hex(), msg["sender"])
		}
	}
	// approve, deposit, make, cancel, 3 makes, 5 makes, 4 flash loans
	assert.Equal(t, 16, receipts)
	assert.Greater(t, events, receipts)
}

func TestWebSocketSubscriptionValidation(t *testing.T) {
	e := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() WSAck {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ack WSAck
		require.NoError(t, conn.ReadJSON(&ack))
		return ack
	}

	user1 := e.gen.Traders()[0].Address()
	lower := "events:" + strings.ToLower(user1.Hex())
	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{lower}}))
	ack := read()
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, []string{"events:" + user1.Hex()}, ack.Channels)

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"blocks", "trades"}}))
	ack = read()
	assert.Equal(t, "error", ack.Type)
	assert.Contains(t, ack.Error, "trades")

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "resubscribe"}))
	assert.Equal(t, "error", read().Type)

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "unsubscribe", Channels: []string{"events:" + user1.Hex()}}))
	assert.Equal(t, "unsubscribed", read().Type)
}
