package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain separates signatures across deployments and chains.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // the exchange custody address
}

func DefaultDomain(chainID int64, exchange common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "FlashDEX",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: exchange,
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// ActionTypes is the EIP-712 schema of every signed exchange action.
// All numeric fields are uint256 and are passed as decimal strings.
var ActionTypes = map[string][]apitypes.Type{
	"Transfer": {
		{Name: "asset", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"Approve": {
		{Name: "asset", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"Deposit": {
		{Name: "asset", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"Withdraw": {
		{Name: "asset", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"MakeOrder": {
		{Name: "assetGet", Type: "address"},
		{Name: "amountGet", Type: "uint256"},
		{Name: "assetGive", Type: "address"},
		{Name: "amountGive", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"CancelOrder": {
		{Name: "orderId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"FillOrder": {
		{Name: "orderId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
	"FlashLoan": {
		{Name: "asset", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "sender", Type: "address"},
	},
}

// TypedMessage is one action ready for EIP-712 hashing.
type TypedMessage struct {
	PrimaryType string
	Message     apitypes.TypedDataMessage
}

type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(msg TypedMessage) (apitypes.TypedData, error) {
	fields, ok := ActionTypes[msg.PrimaryType]
	if !ok {
		return apitypes.TypedData{}, fmt.Errorf("unknown primary type %q", msg.PrimaryType)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":  domainType,
			msg.PrimaryType: fields,
		},
		PrimaryType: msg.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg.Message,
	}, nil
}

// Hash returns keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func (e *EIP712Signer) Hash(msg TypedMessage) ([]byte, error) {
	typedData, err := e.typedData(msg)
	if err != nil {
		return nil, err
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := make([]byte, 0, 2+len(domainSeparator)+len(typedDataHash))
	rawData = append(rawData, 0x19, 0x01)
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, typedDataHash...)
	return crypto.Keccak256(rawData), nil
}

func (e *EIP712Signer) Sign(signer *Signer, msg TypedMessage) ([]byte, error) {
	hash, err := e.Hash(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", msg.PrimaryType, err)
	}
	return signer.Sign(hash)
}

// Recover returns the address that signed msg.
func (e *EIP712Signer) Recover(msg TypedMessage, signature []byte) (common.Address, error) {
	hash, err := e.Hash(msg)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash %s: %w", msg.PrimaryType, err)
	}
	return RecoverAddress(hash, signature)
}

// ToJSON renders msg in the eth_signTypedData_v4 format wallets expect.
func (e *EIP712Signer) ToJSON(msg TypedMessage) (string, error) {
	typedData, err := e.typedData(msg)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(out), nil
}
