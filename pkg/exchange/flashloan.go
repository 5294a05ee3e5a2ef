package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/asset"
)

// FlashBorrower receives a flash loan. OnFlashLoan runs synchronously inside
// the lending operation and must leave Owed() back with the lender before
// returning. Returning an error aborts the whole operation.
type FlashBorrower interface {
	OnFlashLoan(loan *Loan) error
}

type BorrowerFunc func(loan *Loan) error

func (f BorrowerFunc) OnFlashLoan(loan *Loan) error { return f(loan) }

// RepayingBorrower repays principal plus fee immediately.
type RepayingBorrower struct{}

func (RepayingBorrower) OnFlashLoan(loan *Loan) error {
	return loan.Repay(loan.Owed())
}

// Loan is the borrower's capability for one flash loan. Every action it
// offers is performed as the borrower, and all of them fail once the
// callback has returned.
type Loan struct {
	ex       *Exchange
	asset    asset.Asset
	borrower common.Address
	amount   *uint256.Int
	fee      *uint256.Int
	active   bool
}

func (l *Loan) Asset() common.Address    { return l.asset.Address() }
func (l *Loan) Borrower() common.Address { return l.borrower }
func (l *Loan) Amount() *uint256.Int     { return l.amount.Clone() }
func (l *Loan) Fee() *uint256.Int        { return l.fee.Clone() }

// Owed is principal plus fee.
func (l *Loan) Owed() *uint256.Int {
	return new(uint256.Int).Add(l.amount, l.fee)
}

// Balance is the borrower's wallet balance of the borrowed asset.
func (l *Loan) Balance() *uint256.Int {
	return l.asset.BalanceOf(l.borrower)
}

func (l *Loan) Transfer(to common.Address, amount *uint256.Int) error {
	if !l.active {
		return ErrLoanExpired
	}
	return wrapAssetErr(l.asset.Transfer(l.borrower, to, amount))
}

// Repay returns amount of the borrowed asset to the lender.
func (l *Loan) Repay(amount *uint256.Int) error {
	return l.Transfer(l.ex.cfg.Address, amount)
}

func (l *Loan) Approve(spender common.Address, amount *uint256.Int) error {
	if !l.active {
		return ErrLoanExpired
	}
	return wrapAssetErr(l.asset.Approve(l.borrower, spender, amount))
}

// Deposit, Withdraw and FillOrder act on the exchange as the borrower.
func (l *Loan) Deposit(assetAddr common.Address, amount *uint256.Int) error {
	if !l.active {
		return ErrLoanExpired
	}
	_, err := l.ex.Deposit(l.borrower, assetAddr, amount)
	return err
}

func (l *Loan) Withdraw(assetAddr common.Address, amount *uint256.Int) error {
	if !l.active {
		return ErrLoanExpired
	}
	_, err := l.ex.Withdraw(l.borrower, assetAddr, amount)
	return err
}

func (l *Loan) FillOrder(id uint64) error {
	if !l.active {
		return ErrLoanExpired
	}
	_, err := l.ex.FillOrder(l.borrower, id)
	return err
}

// FlashLoanFee is amount * bps / 10000, truncated.
func (e *Exchange) FlashLoanFee(amount *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(e.cfg.FlashLoanFeeBps), uint256.NewInt(10_000))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return fee, nil
}

// RegisterBorrower binds the callback used by GetFlashLoan for addr.
func (e *Exchange) RegisterBorrower(addr common.Address, b FlashBorrower) {
	e.borrowers[addr] = b
}

func (e *Exchange) Borrower(addr common.Address) (FlashBorrower, bool) {
	b, ok := e.borrowers[addr]
	return b, ok
}

// GetFlashLoan lends to borrower using its registered callback.
func (e *Exchange) GetFlashLoan(borrower, assetAddr common.Address, amount *uint256.Int) (*Receipt, error) {
	b, ok := e.borrowers[borrower]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBorrower, borrower.Hex())
	}
	return e.FlashLoan(borrower, assetAddr, amount, b)
}

// FlashLoan lends amount of assetAddr from the exchange reserve to borrower
// and runs b. The operation commits only if, after b returns, the exchange
// wallet holds at least its prior balance plus the fee and the reserve grew
// by at least the fee. Funds deposited to the ledger do not count as
// repayment.
func (e *Exchange) FlashLoan(borrower, assetAddr common.Address, amount *uint256.Int, b FlashBorrower) (*Receipt, error) {
	return e.atomic(func() (uint64, error) {
		a, err := e.asset(assetAddr)
		if err != nil {
			return 0, err
		}
		reserveBefore, err := e.Reserve(assetAddr)
		if err != nil {
			return 0, err
		}
		if reserveBefore.Lt(amount) {
			return 0, fmt.Errorf("%w: reserve %s below requested %s", ErrInsufficientBalance, reserveBefore, amount)
		}
		fee, err := e.FlashLoanFee(amount)
		if err != nil {
			return 0, err
		}
		balanceBefore := a.BalanceOf(e.cfg.Address)

		if err := a.Transfer(e.cfg.Address, borrower, amount); err != nil {
			return 0, wrapAssetErr(err)
		}

		loan := &Loan{ex: e, asset: a, borrower: borrower, amount: amount.Clone(), fee: fee, active: true}
		err = callBorrower(b, loan)
		loan.active = false
		if err != nil {
			return 0, fmt.Errorf("%w: borrower failed: %w", ErrFlashLoanNotRepaid, err)
		}

		wantBalance, overflow := new(uint256.Int).AddOverflow(balanceBefore, fee)
		if overflow {
			return 0, ErrAmountOverflow
		}
		if held := a.BalanceOf(e.cfg.Address); held.Lt(wantBalance) {
			return 0, fmt.Errorf("%w: lender holds %s, expected %s", ErrFlashLoanNotRepaid, held, wantBalance)
		}
		wantReserve := new(uint256.Int).Add(reserveBefore, fee)
		reserveAfter, err := e.Reserve(assetAddr)
		if err != nil {
			return 0, err
		}
		if reserveAfter.Lt(wantReserve) {
			return 0, fmt.Errorf("%w: reserve %s, expected %s", ErrFlashLoanNotRepaid, reserveAfter, wantReserve)
		}

		e.emit(FlashLoan{Borrower: borrower, Asset: assetAddr, Amount: amount.Clone(), Fee: fee})
		return 0, nil
	})
}

// callBorrower converts a panicking borrower into an error.
func callBorrower(b FlashBorrower, loan *Loan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("borrower panicked: %v", r)
		}
	}()
	return b.OnFlashLoan(loan)
}
