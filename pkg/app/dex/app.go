package dex

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/flashdex/params"
	"github.com/uhyunpark/flashdex/pkg/abci"
	"github.com/uhyunpark/flashdex/pkg/app/core/account"
	"github.com/uhyunpark/flashdex/pkg/app/core/mempool"
	"github.com/uhyunpark/flashdex/pkg/app/core/transaction"
	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/crypto"
	"github.com/uhyunpark/flashdex/pkg/exchange"
	"github.com/uhyunpark/flashdex/pkg/metrics"
	"github.com/uhyunpark/flashdex/pkg/sequencer"
	"github.com/uhyunpark/flashdex/pkg/state"
)

var ErrUnexpectedHeight = errors.New("dex: unexpected block height")

// StateStore persists committed change sets.
type StateStore interface {
	ApplyChangeSet(height uint64, changes []state.Change) error
}

// App hosts the exchange: it owns the state, executes signed transactions
// in block order and serves read-only queries.
//
// Writes (FinalizeBlock, RegisterBorrower) take the write lock; queries
// take the read lock. Mempool admission has its own lock.
type App struct {
	mu sync.RWMutex

	cfg      params.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	store    StateStore
	deployer *crypto.Signer

	db       *state.StateDB
	assets   *asset.Registry
	ex       *exchange.Exchange
	nonces   *account.Nonces
	eip712   *crypto.EIP712Signer
	verifier *transaction.Verifier
	mempool  *mempool.Mempool

	height    uint64
	timestamp int64
	appHash   sequencer.Hash

	// OnReceipts is called after every block with its receipts, outside
	// the state lock.
	OnReceipts func(height uint64, receipts []Receipt)
}

type Option func(*App)

func WithLogger(l *zap.Logger) Option { return func(a *App) { a.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *App) { a.metrics = m } }

// WithStateStore writes the genesis state and every committed block's
// change set to s.
func WithStateStore(s StateStore) Option { return func(a *App) { a.store = s } }

// NewApp builds genesis from cfg: the configured tokens minted to the
// deployer, the exchange, and the lender reserve moved into it. Token
// addresses are derived from the deployer as contract creations with
// nonces 0..n-1; the exchange takes nonce n.
func NewApp(cfg params.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	deployer, err := crypto.FromPrivateKeyHex(cfg.Genesis.DeployerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployer key: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   zap.NewNop(),
		deployer: deployer,
		db:       state.New(),
		assets:   asset.NewRegistry(),
		mempool:  mempool.NewMempoolWithLimit(cfg.Node.MaxPending),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.genesis(); err != nil {
		return nil, fmt.Errorf("genesis failed: %w", err)
	}
	return a, nil
}

func (a *App) genesis() error {
	owner := a.deployer.Address()
	for i, gt := range a.cfg.Genesis.Tokens {
		addr := ethcrypto.CreateAddress(owner, uint64(i))
		tok, err := asset.NewToken(a.db, addr, gt.Name, gt.Symbol, asset.DefaultDecimals, gt.Supply, owner)
		if err != nil {
			return fmt.Errorf("token %s: %w", gt.Symbol, err)
		}
		if err := a.assets.Register(tok); err != nil {
			return err
		}
	}

	exAddr := ethcrypto.CreateAddress(owner, uint64(len(a.cfg.Genesis.Tokens)))
	ex, err := exchange.New(a.db, a.assets, exchange.Config{
		Address:         exAddr,
		FeeAccount:      a.cfg.Exchange.FeeAccount,
		FeePercent:      a.cfg.Exchange.FeePercent,
		FlashLoanFeeBps: a.cfg.Exchange.FlashLoanFeeBps,
	})
	if err != nil {
		return err
	}
	a.ex = ex
	a.nonces = account.NewNonces(a.db)

	if a.cfg.Genesis.LenderReserve > 0 {
		for _, tok := range a.assets.List() {
			amount, err := asset.Units(a.cfg.Genesis.LenderReserve, tok.Decimals())
			if err != nil {
				return err
			}
			if err := tok.Transfer(owner, exAddr, amount); err != nil {
				return fmt.Errorf("fund reserve %s: %w", tok.Symbol(), err)
			}
		}
	}

	domain := crypto.DefaultDomain(a.cfg.Exchange.ChainID, exAddr)
	a.eip712 = crypto.NewEIP712Signer(domain)
	a.verifier = transaction.NewVerifier(domain)

	changes := a.db.Commit()
	if a.store != nil {
		if err := a.store.ApplyChangeSet(0, changes); err != nil {
			return err
		}
	}
	a.appHash = computeAppHash(0, 0, a.db.Hash())

	a.logger.Info("genesis",
		zap.String("exchange", exAddr.Hex()),
		zap.String("deployer", owner.Hex()),
		zap.Int("tokens", len(a.cfg.Genesis.Tokens)),
		zap.String("apphash", a.appHash.String()),
	)
	return nil
}

// PushTx admits a signed transaction to the mempool after structural and
// signature checks. Nonces are checked at execution.
func (a *App) PushTx(raw []byte) (string, error) {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return "", err
	}
	if _, err := a.verifier.Verify(tx); err != nil {
		return "", err
	}
	if err := a.mempool.PushRaw(raw); err != nil {
		return "", err
	}
	if a.metrics != nil {
		a.metrics.SetMempoolSize(a.mempool.Len())
	}
	return TxHash(raw), nil
}

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	txs := a.mempool.SelectForProposal(req.MaxTxBytes)
	if a.metrics != nil {
		a.metrics.SetMempoolSize(a.mempool.Len())
	}
	return abci.ResponsePrepareProposal{Txs: txs}
}

// FinalizeBlock executes txs in order, checks ledger solvency for every
// asset, commits the change set and returns the new app hash. A solvency
// violation reverts the whole block and is returned as an error.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) (abci.ResponseFinalizeBlock, error) {
	a.mu.Lock()

	height := uint64(req.Height)
	if height != a.height+1 {
		a.mu.Unlock()
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedHeight, height, a.height+1)
	}

	a.db.SetBlockContext(state.BlockContext{Height: height, Time: req.Timestamp})
	blockSnap := a.db.Snapshot()

	receipts := make([]Receipt, 0, len(req.Txs))
	for i, raw := range req.Txs {
		rc := a.applyTx(raw)
		rc.Index = i
		receipts = append(receipts, rc)
	}

	for _, tok := range a.assets.List() {
		if err := a.ex.CheckSolvency(tok.Address()); err != nil {
			a.db.RevertToSnapshot(blockSnap)
			a.mu.Unlock()
			// The txs already left the mempool; list them so they can be resubmitted.
			hashes := make([]string, len(req.Txs))
			for i, raw := range req.Txs {
				hashes[i] = TxHash(raw)
			}
			a.logger.Warn("block_reverted_insolvent",
				zap.Uint64("height", height),
				zap.String("asset", tok.Symbol()),
				zap.Strings("dropped_txs", hashes),
				zap.Error(err),
			)
			return abci.ResponseFinalizeBlock{}, fmt.Errorf("block %d: %w", height, err)
		}
	}

	changes := a.db.Commit()
	if a.store != nil {
		if err := a.store.ApplyChangeSet(height, changes); err != nil {
			a.mu.Unlock()
			return abci.ResponseFinalizeBlock{}, fmt.Errorf("persist block %d: %w", height, err)
		}
	}

	a.height = height
	a.timestamp = req.Timestamp
	a.appHash = computeAppHash(height, req.Timestamp, a.db.Hash())
	appHash := a.appHash
	a.mu.Unlock()

	results := make([]abci.ExecTxResult, len(receipts))
	failed := 0
	for i, rc := range receipts {
		results[i] = abci.ExecTxResult{Code: rc.Code, Error: rc.Error}
		if rc.Status != StatusSuccess {
			failed++
		}
		if a.metrics != nil {
			op := string(rc.Type)
			if op == "" {
				op = "unknown"
			}
			a.metrics.ObserveTx(op, rc.Code)
		}
	}
	if a.metrics != nil {
		a.metrics.ObserveBlock(height, len(receipts))
	}

	// Quiet logging: only log non-empty blocks
	if len(req.Txs) > 0 {
		a.logger.Info("finalize_block",
			zap.Uint64("height", height),
			zap.Int("txs", len(req.Txs)),
			zap.Int("failed", failed),
			zap.String("apphash", "0x"+appHash.String()),
		)
	}

	if a.OnReceipts != nil {
		a.OnReceipts(height, receipts)
	}

	return abci.ResponseFinalizeBlock{TxResults: results, AppHash: appHash}, nil
}

// RegisterBorrower binds the flash loan callback run for flash_loan
// transactions signed by addr. Unregistered senders repay immediately.
func (a *App) RegisterBorrower(addr common.Address, b exchange.FlashBorrower) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ex.RegisterBorrower(addr, b)
}

// EIP712 returns the signer for this chain's domain, for clients and tools.
func (a *App) EIP712() *crypto.EIP712Signer { return a.eip712 }

// Deployer is the genesis account holding the minted supply.
func (a *App) Deployer() *crypto.Signer { return a.deployer }

// computeAppHash commits to height, timestamp and the full state:
// sha256(height || timestamp || sha256(state)).
func computeAppHash(height uint64, timestamp int64, stateHash [32]byte) sequencer.Hash {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])

	binary.BigEndian.PutUint64(buf[:], uint64(timestamp))
	h.Write(buf[:])

	h.Write(stateHash[:])

	var out sequencer.Hash
	copy(out[:], h.Sum(nil))
	return out
}

var _ abci.Application = (*App)(nil)
