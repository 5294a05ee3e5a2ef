package transaction

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/flashdex/pkg/crypto"
)

// Verifier checks that a transaction was signed by its declared sender.
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verify returns the sender if the signature recovers to it.
func (v *Verifier) Verify(tx *SignedTransaction) (common.Address, error) {
	msg, err := tx.TypedMessage()
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid payload: %w", err)
	}
	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	recovered, err := v.eip712Signer.Recover(msg, sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if recovered != tx.SenderAddress() {
		return common.Address{}, fmt.Errorf("signature from %s does not match sender %s", recovered.Hex(), tx.Sender)
	}
	return recovered, nil
}

// Sign fills in Sender and Signature for tx using signer.
func Sign(es *crypto.EIP712Signer, signer *crypto.Signer, tx *SignedTransaction, nonce uint64) error {
	tx.Sender = signer.Address().Hex()
	tx.Nonce = strconv.FormatUint(nonce, 10)
	msg, err := tx.TypedMessage()
	if err != nil {
		return err
	}
	sig, err := es.Sign(signer, msg)
	if err != nil {
		return err
	}
	tx.Signature = fmt.Sprintf("0x%x", sig)
	return nil
}

func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	return sigBytes, nil
}
