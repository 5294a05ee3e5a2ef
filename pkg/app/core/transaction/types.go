package transaction

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/flashdex/pkg/crypto"
)

// TxType names a signed exchange action.
type TxType string

const (
	TxTypeTransfer    TxType = "transfer"     // wallet transfer of an asset
	TxTypeApprove     TxType = "approve"      // allowance for a spender (usually the exchange)
	TxTypeDeposit     TxType = "deposit"      // wallet -> ledger
	TxTypeWithdraw    TxType = "withdraw"     // ledger -> wallet
	TxTypeMakeOrder   TxType = "make_order"   // place an order
	TxTypeCancelOrder TxType = "cancel_order" // cancel own order
	TxTypeFillOrder   TxType = "fill_order"   // take an order
	TxTypeFlashLoan   TxType = "flash_loan"   // borrow from the exchange reserve
)

// SignedTransaction is the JSON envelope submitted by clients.
// Exactly one payload matching Type must be set. Amounts and nonces are
// decimal strings in base units.
type SignedTransaction struct {
	Type   TxType `json:"type"`
	Sender string `json:"sender"`
	Nonce  string `json:"nonce"`

	Transfer  *TransferPayload  `json:"transfer,omitempty"`
	Approve   *ApprovePayload   `json:"approve,omitempty"`
	Funds     *FundsPayload     `json:"funds,omitempty"` // deposit, withdraw, flash_loan
	MakeOrder *MakeOrderPayload `json:"makeOrder,omitempty"`
	OrderRef  *OrderRefPayload  `json:"orderRef,omitempty"` // cancel_order, fill_order

	Signature string `json:"signature"` // 0x-prefixed 65-byte hex
}

type TransferPayload struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ApprovePayload struct {
	Asset   string `json:"asset"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type FundsPayload struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type MakeOrderPayload struct {
	AssetGet   string `json:"assetGet"`
	AmountGet  string `json:"amountGet"`
	AssetGive  string `json:"assetGive"`
	AmountGive string `json:"amountGive"`
}

type OrderRefPayload struct {
	OrderID string `json:"orderId"`
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// ParseTransaction decodes and structurally validates a raw transaction.
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// Validate checks structure only; signatures are checked by Verifier.
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if tx.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	if _, err := parseAddress("sender", tx.Sender); err != nil {
		return err
	}
	if _, err := tx.NonceValue(); err != nil {
		return err
	}
	_, err := tx.TypedMessage()
	return err
}

func (tx *SignedTransaction) SenderAddress() common.Address {
	return common.HexToAddress(tx.Sender)
}

func (tx *SignedTransaction) NonceValue() (uint64, error) {
	n, err := strconv.ParseUint(tx.Nonce, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid nonce %q: %w", tx.Nonce, err)
	}
	return n, nil
}

// TypedMessage builds the EIP-712 message that the sender signs.
func (tx *SignedTransaction) TypedMessage() (crypto.TypedMessage, error) {
	msg := apitypes.TypedDataMessage{
		"nonce":  tx.Nonce,
		"sender": tx.Sender,
	}
	var primary string

	switch tx.Type {
	case TxTypeTransfer:
		if tx.Transfer == nil {
			return crypto.TypedMessage{}, fmt.Errorf("transfer type requires transfer payload")
		}
		primary = "Transfer"
		msg["asset"] = tx.Transfer.Asset
		msg["to"] = tx.Transfer.To
		msg["amount"] = tx.Transfer.Amount
		if err := checkFields(addrField("asset", tx.Transfer.Asset), addrField("to", tx.Transfer.To), amountField("amount", tx.Transfer.Amount)); err != nil {
			return crypto.TypedMessage{}, err
		}

	case TxTypeApprove:
		if tx.Approve == nil {
			return crypto.TypedMessage{}, fmt.Errorf("approve type requires approve payload")
		}
		primary = "Approve"
		msg["asset"] = tx.Approve.Asset
		msg["spender"] = tx.Approve.Spender
		msg["amount"] = tx.Approve.Amount
		if err := checkFields(addrField("asset", tx.Approve.Asset), addrField("spender", tx.Approve.Spender), amountField("amount", tx.Approve.Amount)); err != nil {
			return crypto.TypedMessage{}, err
		}

	case TxTypeDeposit, TxTypeWithdraw, TxTypeFlashLoan:
		if tx.Funds == nil {
			return crypto.TypedMessage{}, fmt.Errorf("%s type requires funds payload", tx.Type)
		}
		primary = map[TxType]string{TxTypeDeposit: "Deposit", TxTypeWithdraw: "Withdraw", TxTypeFlashLoan: "FlashLoan"}[tx.Type]
		msg["asset"] = tx.Funds.Asset
		msg["amount"] = tx.Funds.Amount
		if err := checkFields(addrField("asset", tx.Funds.Asset), amountField("amount", tx.Funds.Amount)); err != nil {
			return crypto.TypedMessage{}, err
		}

	case TxTypeMakeOrder:
		o := tx.MakeOrder
		if o == nil {
			return crypto.TypedMessage{}, fmt.Errorf("make_order type requires makeOrder payload")
		}
		primary = "MakeOrder"
		msg["assetGet"] = o.AssetGet
		msg["amountGet"] = o.AmountGet
		msg["assetGive"] = o.AssetGive
		msg["amountGive"] = o.AmountGive
		if err := checkFields(
			addrField("assetGet", o.AssetGet), amountField("amountGet", o.AmountGet),
			addrField("assetGive", o.AssetGive), amountField("amountGive", o.AmountGive),
		); err != nil {
			return crypto.TypedMessage{}, err
		}

	case TxTypeCancelOrder, TxTypeFillOrder:
		if tx.OrderRef == nil {
			return crypto.TypedMessage{}, fmt.Errorf("%s type requires orderRef payload", tx.Type)
		}
		primary = "CancelOrder"
		if tx.Type == TxTypeFillOrder {
			primary = "FillOrder"
		}
		msg["orderId"] = tx.OrderRef.OrderID
		if _, err := strconv.ParseUint(tx.OrderRef.OrderID, 10, 64); err != nil {
			return crypto.TypedMessage{}, fmt.Errorf("invalid orderId %q: %w", tx.OrderRef.OrderID, err)
		}

	default:
		return crypto.TypedMessage{}, fmt.Errorf("unknown transaction type: %s", tx.Type)
	}

	return crypto.TypedMessage{PrimaryType: primary, Message: msg}, nil
}

// Asset returns the asset the transaction targets, if any.
func (tx *SignedTransaction) Asset() (common.Address, bool) {
	switch {
	case tx.Transfer != nil:
		return common.HexToAddress(tx.Transfer.Asset), true
	case tx.Approve != nil:
		return common.HexToAddress(tx.Approve.Asset), true
	case tx.Funds != nil:
		return common.HexToAddress(tx.Funds.Asset), true
	}
	return common.Address{}, false
}

// ParseAmount decodes a base-unit decimal string.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func ParseOrderID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseAddress(field, s string) (common.Address, error) {
	addr, err := crypto.ParseAddress(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func addrField(name, v string) func() error {
	return func() error {
		_, err := parseAddress(name, v)
		return err
	}
}

func amountField(name, v string) func() error {
	return func() error {
		if _, err := ParseAmount(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func checkFields(checks ...func() error) error {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}
