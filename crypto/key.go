package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Key is an account key kept as a hex encoded secp256k1 scalar on disk.
type Key struct {
	privateKey *ecdsa.PrivateKey
}

func NewKey(priv *ecdsa.PrivateKey) *Key {
	return &Key{privateKey: priv}
}

func LoadKeyFile(keyFilePath string) (*Key, error) {
	dat, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	priv, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(string(dat)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("read key %v: %w", keyFilePath, err)
	}
	return &Key{privateKey: priv}, nil
}

// GenerateKeyFile writes a new key to keyFilePath, refusing to overwrite.
func GenerateKeyFile(keyFilePath string) (*Key, error) {
	if _, err := os.Stat(keyFilePath); err == nil {
		return nil, fmt.Errorf("key file %v already exists", keyFilePath)
	}
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(filepath.Dir(keyFilePath), 0o700); err != nil {
		return nil, err
	}
	k := &Key{privateKey: priv}
	if err = os.WriteFile(keyFilePath, []byte(hex.EncodeToString(ethcrypto.FromECDSA(priv))), 0o600); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Key) PrivateKey() *ecdsa.PrivateKey {
	return k.privateKey
}

func (k *Key) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.privateKey.PublicKey)
}

func (k *Key) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.privateKey.PublicKey)
}

// Sign signs the Keccak256 digest of data.
func (k *Key) Sign(data []byte) ([]byte, error) {
	return ethcrypto.Sign(ethcrypto.Keccak256(data), k.privateKey)
}
