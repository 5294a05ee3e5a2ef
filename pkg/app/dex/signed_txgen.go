package dex

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/app/core/transaction"
	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/crypto"
	"github.com/uhyunpark/flashdex/pkg/exchange"
)

// SeedAmount is how many whole tokens each seeded trader receives.
const SeedAmount = 100_000

// SignedTxGenerator creates signed transactions for devnets and tests.
// Traders are fresh keys; the deployer funds them.
type SignedTxGenerator struct {
	app      *App
	deployer *crypto.Signer
	traders  []*crypto.Signer
	nonces   map[common.Address]uint64
	eip712   *crypto.EIP712Signer
	rng      *rand.Rand

	base, quote TokenInfo
}

func NewSignedTxGenerator(app *App, numAccounts int, seed int64) (*SignedTxGenerator, error) {
	if numAccounts < 2 {
		numAccounts = 2
	}
	tokens := app.Tokens()
	if len(tokens) < 2 {
		return nil, fmt.Errorf("need at least two tokens, have %d", len(tokens))
	}

	g := &SignedTxGenerator{
		app:      app,
		deployer: app.Deployer(),
		nonces:   make(map[common.Address]uint64),
		eip712:   app.EIP712(),
		rng:      rand.New(rand.NewSource(seed)),
		base:     tokens[0],
		quote:    tokens[1],
	}
	for _, ti := range tokens {
		switch ti.Symbol {
		case "IPT":
			g.base = ti
		case "mUSDC":
			g.quote = ti
		}
	}
	for i := 0; i < numAccounts; i++ {
		signer, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		g.traders = append(g.traders, signer)
	}
	return g, nil
}

func (g *SignedTxGenerator) Traders() []*crypto.Signer { return g.traders }

func (g *SignedTxGenerator) nextNonce(addr common.Address) uint64 {
	n, ok := g.nonces[addr]
	if !ok {
		n = g.app.Nonce(addr)
	}
	n++
	g.nonces[addr] = n
	return n
}

func (g *SignedTxGenerator) sign(signer *crypto.Signer, tx *transaction.SignedTransaction) ([]byte, error) {
	if err := transaction.Sign(g.eip712, signer, tx, g.nextNonce(signer.Address())); err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", tx.Type, err)
	}
	return tx.Serialize()
}

func amountStr(v *uint256.Int) string { return v.Dec() }

func (g *SignedTxGenerator) Transfer(from *crypto.Signer, tok common.Address, to common.Address, amount *uint256.Int) ([]byte, error) {
	return g.sign(from, &transaction.SignedTransaction{
		Type:     transaction.TxTypeTransfer,
		Transfer: &transaction.TransferPayload{Asset: tok.Hex(), To: to.Hex(), Amount: amountStr(amount)},
	})
}

func (g *SignedTxGenerator) Approve(from *crypto.Signer, tok common.Address, spender common.Address, amount *uint256.Int) ([]byte, error) {
	return g.sign(from, &transaction.SignedTransaction{
		Type:    transaction.TxTypeApprove,
		Approve: &transaction.ApprovePayload{Asset: tok.Hex(), Spender: spender.Hex(), Amount: amountStr(amount)},
	})
}

func (g *SignedTxGenerator) funds(from *crypto.Signer, typ transaction.TxType, tok common.Address, amount *uint256.Int) ([]byte, error) {
	return g.sign(from, &transaction.SignedTransaction{
		Type:  typ,
		Funds: &transaction.FundsPayload{Asset: tok.Hex(), Amount: amountStr(amount)},
	})
}

func (g *SignedTxGenerator) Deposit(from *crypto.Signer, tok common.Address, amount *uint256.Int) ([]byte, error) {
	return g.funds(from, transaction.TxTypeDeposit, tok, amount)
}

func (g *SignedTxGenerator) Withdraw(from *crypto.Signer, tok common.Address, amount *uint256.Int) ([]byte, error) {
	return g.funds(from, transaction.TxTypeWithdraw, tok, amount)
}

func (g *SignedTxGenerator) FlashLoan(from *crypto.Signer, tok common.Address, amount *uint256.Int) ([]byte, error) {
	return g.funds(from, transaction.TxTypeFlashLoan, tok, amount)
}

func (g *SignedTxGenerator) MakeOrder(from *crypto.Signer, assetGet common.Address, amountGet *uint256.Int, assetGive common.Address, amountGive *uint256.Int) ([]byte, error) {
	return g.sign(from, &transaction.SignedTransaction{
		Type: transaction.TxTypeMakeOrder,
		MakeOrder: &transaction.MakeOrderPayload{
			AssetGet:   assetGet.Hex(),
			AmountGet:  amountStr(amountGet),
			AssetGive:  assetGive.Hex(),
			AmountGive: amountStr(amountGive),
		},
	})
}

func (g *SignedTxGenerator) orderRef(from *crypto.Signer, typ transaction.TxType, id uint64) ([]byte, error) {
	return g.sign(from, &transaction.SignedTransaction{
		Type:     typ,
		OrderRef: &transaction.OrderRefPayload{OrderID: strconv.FormatUint(id, 10)},
	})
}

func (g *SignedTxGenerator) CancelOrder(from *crypto.Signer, id uint64) ([]byte, error) {
	return g.orderRef(from, transaction.TxTypeCancelOrder, id)
}

func (g *SignedTxGenerator) FillOrder(from *crypto.Signer, id uint64) ([]byte, error) {
	return g.orderRef(from, transaction.TxTypeFillOrder, id)
}

// SeedTxs reproduces the devnet seed scenario in execution order:
// distribute base and quote to the first two traders, approve and deposit,
// make and cancel an order, make and fill three orders, leave five open
// orders per side, then run four flash loans of 1000 base tokens.
//
// Order ids are predicted from the current order count, so the batch must
// execute without other order traffic in between.
func (g *SignedTxGenerator) SeedTxs() ([][]byte, error) {
	var out [][]byte
	add := func(b []byte, err error) error {
		if err != nil {
			return err
		}
		out = append(out, b)
		return nil
	}

	ex := g.app.ExchangeAddress()
	user1, user2 := g.traders[0], g.traders[1]
	base, quote := g.base.Address, g.quote.Address
	amount := asset.Tokens(SeedAmount)

	// The extra base tokens in user1's wallet pay flash loan fees.
	steps := []func() ([]byte, error){
		func() ([]byte, error) { return g.Transfer(g.deployer, base, user1.Address(), amount) },
		func() ([]byte, error) { return g.Transfer(g.deployer, base, user1.Address(), asset.Tokens(1_000)) },
		func() ([]byte, error) { return g.Transfer(g.deployer, quote, user2.Address(), amount) },
		func() ([]byte, error) { return g.Approve(user1, base, ex, amount) },
		func() ([]byte, error) { return g.Deposit(user1, base, amount) },
		func() ([]byte, error) { return g.Approve(user2, quote, ex, amount) },
		func() ([]byte, error) { return g.Deposit(user2, quote, amount) },
	}
	for _, step := range steps {
		if err := add(step()); err != nil {
			return nil, err
		}
	}

	nextID := g.app.OrderCount() + 1

	if err := add(g.MakeOrder(user1, quote, asset.Tokens(1), base, asset.Tokens(1))); err != nil {
		return nil, err
	}
	if err := add(g.CancelOrder(user1, nextID)); err != nil {
		return nil, err
	}
	nextID++

	for i := uint64(1); i <= 3; i++ {
		if err := add(g.MakeOrder(user1, quote, asset.Tokens(10*i), base, asset.Tokens(10))); err != nil {
			return nil, err
		}
		if err := add(g.FillOrder(user2, nextID)); err != nil {
			return nil, err
		}
		nextID++
	}

	for i := uint64(1); i <= 5; i++ {
		if err := add(g.MakeOrder(user1, quote, asset.Tokens(10*i), base, asset.Tokens(10))); err != nil {
			return nil, err
		}
	}
	for i := uint64(1); i <= 5; i++ {
		if err := add(g.MakeOrder(user2, base, asset.Tokens(10), quote, asset.Tokens(10*i))); err != nil {
			return nil, err
		}
	}

	for i := 0; i < 4; i++ {
		if err := add(g.FlashLoan(user1, base, asset.Tokens(1_000))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Next returns one random action by the seeded traders: mostly new orders,
// some fills of the counterparty's open orders, and occasional flash loans.
func (g *SignedTxGenerator) Next() ([]byte, error) {
	user1, user2 := g.traders[0], g.traders[1]
	base, quote := g.base.Address, g.quote.Address

	switch r := g.rng.Intn(100); {
	case r < 55:
		size := asset.Tokens(uint64(g.rng.Intn(10) + 1))
		price := asset.Tokens(uint64(g.rng.Intn(50) + 1))
		if g.rng.Intn(2) == 0 {
			return g.MakeOrder(user1, quote, price, base, size)
		}
		return g.MakeOrder(user2, base, size, quote, price)

	case r < 90:
		taker := user2
		if g.rng.Intn(2) == 0 {
			taker = user1
		}
		open := exchange.StatusOpen
		orders, err := g.app.Orders(exchange.OrderFilter{Status: &open})
		if err != nil {
			return nil, err
		}
		var candidates []uint64
		for _, o := range orders {
			if o.Creator != taker.Address() {
				candidates = append(candidates, o.ID)
			}
		}
		if len(candidates) == 0 {
			return g.FlashLoan(user1, base, asset.Tokens(100))
		}
		return g.FillOrder(taker, candidates[g.rng.Intn(len(candidates))])

	default:
		return g.FlashLoan(user1, base, asset.Tokens(uint64(g.rng.Intn(1_000)+1)))
	}
}

// GenerateBatch returns n random actions, skipping any that fail to sign.
func (g *SignedTxGenerator) GenerateBatch(n int) [][]byte {
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		tx, err := g.Next()
		if err != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}
