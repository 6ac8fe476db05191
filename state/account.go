package state

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is the per-sender replay record. Balances live in the ledger.
type Account struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
	LastTx  uint64         `json:"lastTx"`
}

func (a *Account) Clone() *Account {
	n := *a
	return &n
}

// Verify reports whether sig is a secp256k1 signature by this account over
// Keccak256(msg). V may be 0/1 or 27/28.
func (a *Account) Verify(msg, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(msg), s)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.PubkeyToAddress(*pub).Bytes(), a.Address.Bytes())
}
