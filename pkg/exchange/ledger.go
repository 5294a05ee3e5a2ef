package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Deposit pulls amount of assetAddr from caller into custody and credits the
// caller's ledger balance. The caller must have approved the exchange.
func (e *Exchange) Deposit(caller, assetAddr common.Address, amount *uint256.Int) (*Receipt, error) {
	return e.atomic(func() (uint64, error) {
		a, err := e.asset(assetAddr)
		if err != nil {
			return 0, err
		}
		if err := a.TransferFrom(e.cfg.Address, caller, e.cfg.Address, amount); err != nil {
			return 0, wrapAssetErr(err)
		}

		bal, err := e.credit(assetAddr, caller, amount)
		if err != nil {
			return 0, err
		}
		if err := e.addCustody(assetAddr, amount); err != nil {
			return 0, err
		}

		e.emit(TokensDeposited{Asset: assetAddr, Owner: caller, Amount: amount.Clone(), Balance: bal})
		return 0, nil
	})
}

// Withdraw debits the caller's ledger balance, then returns the funds from
// custody to the caller's wallet.
func (e *Exchange) Withdraw(caller, assetAddr common.Address, amount *uint256.Int) (*Receipt, error) {
	return e.atomic(func() (uint64, error) {
		a, err := e.asset(assetAddr)
		if err != nil {
			return 0, err
		}

		bal, err := e.debit(assetAddr, caller, amount)
		if err != nil {
			return 0, err
		}
		e.subCustody(assetAddr, amount)

		if err := a.Transfer(e.cfg.Address, caller, amount); err != nil {
			return 0, wrapAssetErr(err)
		}

		e.emit(TokensWithdrawn{Asset: assetAddr, Owner: caller, Amount: amount.Clone(), Balance: bal})
		return 0, nil
	})
}

// TotalBalanceOf returns owner's ledger balance of assetAddr.
func (e *Exchange) TotalBalanceOf(assetAddr, owner common.Address) *uint256.Int {
	return e.db.GetUint(e.balanceKey(assetAddr, owner))
}

// Custody is the sum of all ledger balances of assetAddr.
func (e *Exchange) Custody(assetAddr common.Address) *uint256.Int {
	return e.db.GetUint(e.custodyKey(assetAddr))
}

// Reserve is the part of the exchange's wallet balance not owed to depositors.
func (e *Exchange) Reserve(assetAddr common.Address) (*uint256.Int, error) {
	a, err := e.asset(assetAddr)
	if err != nil {
		return nil, err
	}
	held := a.BalanceOf(e.cfg.Address)
	custody := e.Custody(assetAddr)
	if held.Lt(custody) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(held, custody), nil
}

// CheckSolvency verifies custody is fully backed by the exchange's wallet.
func (e *Exchange) CheckSolvency(assetAddr common.Address) error {
	a, err := e.asset(assetAddr)
	if err != nil {
		return err
	}
	held := a.BalanceOf(e.cfg.Address)
	custody := e.Custody(assetAddr)
	if held.Lt(custody) {
		return fmt.Errorf("asset %s insolvent: custody %s exceeds holdings %s", a.Symbol(), custody, held)
	}
	return nil
}

func (e *Exchange) credit(assetAddr, owner common.Address, amount *uint256.Int) (*uint256.Int, error) {
	key := e.balanceKey(assetAddr, owner)
	bal, overflow := new(uint256.Int).AddOverflow(e.db.GetUint(key), amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	e.db.SetUint(key, bal)
	return bal, nil
}

func (e *Exchange) debit(assetAddr, owner common.Address, amount *uint256.Int) (*uint256.Int, error) {
	key := e.balanceKey(assetAddr, owner)
	cur := e.db.GetUint(key)
	if cur.Lt(amount) {
		return nil, fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, owner.Hex(), cur, amount)
	}
	bal := new(uint256.Int).Sub(cur, amount)
	e.db.SetUint(key, bal)
	return bal, nil
}

func (e *Exchange) addCustody(assetAddr common.Address, amount *uint256.Int) error {
	total, overflow := new(uint256.Int).AddOverflow(e.Custody(assetAddr), amount)
	if overflow {
		return ErrAmountOverflow
	}
	e.db.SetUint(e.custodyKey(assetAddr), total)
	return nil
}

// subCustody is only called after a successful debit, so it cannot underflow.
func (e *Exchange) subCustody(assetAddr common.Address, amount *uint256.Int) {
	e.db.SetUint(e.custodyKey(assetAddr), new(uint256.Int).Sub(e.Custody(assetAddr), amount))
}
