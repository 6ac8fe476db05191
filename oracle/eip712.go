package oracle

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/calehh/authchain/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "AuthenticityOracle"
	DomainVersion = "1"
)

var ErrInvalidSignature = errors.New("invalid attestation signature")

var attestationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Attestation": {
		{Name: "requestId", Type: "bytes32"},
		{Name: "productId", Type: "bytes32"},
		{Name: "verdict", Type: "bool"},
		{Name: "evidenceURI", Type: "string"},
		{Name: "readingCode", Type: "uint32"},
		{Name: "readingValue", Type: "int64"},
		{Name: "timestamp", Type: "uint64"},
		{Name: "deadline", Type: "uint64"},
		{Name: "nonce", Type: "uint64"},
	},
}

// TypedData builds the EIP-712 document a source signs. The domain binds the
// signature to one chain and to the protocol custody address.
func TypedData(chainID int64, att *Attestation) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       attestationTypes,
		PrimaryType: "Attestation",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: types.CustodyAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"requestId":    att.RequestID.Hex(),
			"productId":    att.ProductID.Hex(),
			"verdict":      att.Verdict,
			"evidenceURI":  att.EvidenceURI,
			"readingCode":  new(big.Int).SetUint64(uint64(att.ReadingCode)),
			"readingValue": big.NewInt(att.ReadingValue),
			"timestamp":    new(big.Int).SetUint64(att.Timestamp),
			"deadline":     new(big.Int).SetUint64(att.Deadline),
			"nonce":        new(big.Int).SetUint64(att.Nonce),
		},
	}
}

func HashAttestation(chainID int64, att *Attestation) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(TypedData(chainID, att))
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(hash), nil
}

// SignAttestation returns a 65 byte [R || S || V] signature with V in {27, 28}.
func SignAttestation(key *ecdsa.PrivateKey, chainID int64, att *Attestation) ([]byte, error) {
	hash, err := HashAttestation(chainID, att)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func RecoverAttester(chainID int64, att *Attestation, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	hash, err := HashAttestation(chainID, att)
	if err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, errors.Join(ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
