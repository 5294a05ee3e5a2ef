package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// AddressFromUncompressedPub derives the account address from a 65-byte
// uncompressed secp256k1 key (0x04 || X || Y): the last 20 bytes of
// keccak256(X || Y).
func AddressFromUncompressedPub(pub []byte) (common.Address, error) {
	if len(pub) != 65 || pub[0] != 0x04 {
		return common.Address{}, fmt.Errorf("invalid uncompressed public key")
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(pub[1:])
	return common.BytesToAddress(h.Sum(nil)[12:]), nil
}

// EIP55 computes the checksummed hex string of a 20-byte address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		nibble := hash[i>>1]
		if i%2 == 0 {
			nibble >>= 4
		}
		nibble &= 0x0f
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[2+i] = c
	}
	return string(out)
}

// ParseAddress parses a hex address. Mixed-case input must carry a valid
// EIP-55 checksum; all-lower and all-upper input is accepted as is.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return addr, nil
	}
	if want := EIP55(addr.Bytes()); "0x"+body != want {
		return common.Address{}, fmt.Errorf("bad checksum for address %q", s)
	}
	return addr, nil
}
