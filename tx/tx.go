package tx

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/calehh/authchain/oracle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type AuthTx struct {
	Version uint8          `json:"version"`
	Type    AuthTxType     `json:"type"`
	Nonce   uint64         `json:"nonce"`
	Sender  common.Address `json:"sender"`
	Tx      any            `json:"tx"`
	Sig     hexutil.Bytes  `json:"sig"`
}

// Basic is implemented by payloads with stateless checks.
type Basic interface {
	ValidateBasic() error
}

type TransferTx struct {
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

func (t *TransferTx) ValidateBasic() error {
	if t.To == (common.Address{}) {
		return ErrZeroAddress
	}
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	return nil
}

type ApproveTx struct {
	Spender common.Address `json:"spender"`
	Amount  uint64         `json:"amount"`
}

func (t *ApproveTx) ValidateBasic() error {
	if t.Spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

type RegisterProductTx struct {
	Product common.Hash `json:"product"`
}

func (t *RegisterProductTx) ValidateBasic() error {
	if t.Product == (common.Hash{}) {
		return ErrEmptyID
	}
	return nil
}

type CapabilityTx struct {
	Capability string         `json:"capability"`
	Identity   common.Address `json:"identity"`
}

func (t *CapabilityTx) ValidateBasic() error {
	if t.Identity == (common.Address{}) {
		return ErrZeroAddress
	}
	if t.Capability == "" {
		return ErrEmptyField
	}
	return nil
}

type RegisterVerifierTx struct {
	Stake uint64 `json:"stake"`
}

func (t *RegisterVerifierTx) ValidateBasic() error {
	if t.Stake == 0 {
		return ErrZeroAmount
	}
	return nil
}

type WithdrawStakeTx struct{}

type RequestVerificationTx struct {
	Product common.Hash `json:"product"`
	Value   uint64      `json:"value"`
}

func (t *RequestVerificationTx) ValidateBasic() error {
	if t.Product == (common.Hash{}) {
		return ErrEmptyID
	}
	return nil
}

type AssignVerifierTx struct {
	Request  common.Hash    `json:"request"`
	Verifier common.Address `json:"verifier"`
}

func (t *AssignVerifierTx) ValidateBasic() error {
	if t.Request == (common.Hash{}) {
		return ErrEmptyID
	}
	if t.Verifier == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

type CompleteVerificationTx struct {
	Request     common.Hash `json:"request"`
	Result      bool        `json:"result"`
	EvidenceURI string      `json:"evidenceURI"`
}

func (t *CompleteVerificationTx) ValidateBasic() error {
	if t.Request == (common.Hash{}) {
		return ErrEmptyID
	}
	return nil
}

// RequestTx carries only a request id: HandleTimeout and
// FinalizeAttestations.
type RequestTx struct {
	Request common.Hash `json:"request"`
}

func (t *RequestTx) ValidateBasic() error {
	if t.Request == (common.Hash{}) {
		return ErrEmptyID
	}
	return nil
}

type SetFeeBoundsTx struct {
	MinFee uint64 `json:"minFee"`
	MaxFee uint64 `json:"maxFee"`
}

type SetMinStakeTx struct {
	MinStake uint64 `json:"minStake"`
}

type SetTimeoutTx struct {
	Seconds int64 `json:"seconds"`
}

type SourceTx struct {
	Source common.Address `json:"source"`
	Kind   uint8          `json:"kind"`
	Weight uint64         `json:"weight"`
}

func (t *SourceTx) ValidateBasic() error {
	if t.Source == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

type SubmitAttestationTx struct {
	Attestation oracle.Attestation `json:"attestation"`
	Signature   hexutil.Bytes      `json:"signature"`
}

func (t *SubmitAttestationTx) ValidateBasic() error {
	if t.Attestation.RequestID == (common.Hash{}) {
		return ErrEmptyID
	}
	if len(t.Signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature length %d", ErrInvalidTx, len(t.Signature))
	}
	return nil
}

type SubmitAttestationTrustedTx struct {
	Attestation oracle.Attestation `json:"attestation"`
	Source      common.Address     `json:"source"`
}

func (t *SubmitAttestationTrustedTx) ValidateBasic() error {
	if t.Attestation.RequestID == (common.Hash{}) {
		return ErrEmptyID
	}
	if t.Source == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

type RegisterRetailerTx struct {
	Retailer common.Address `json:"retailer"`
	Name     string         `json:"name"`
}

func (t *RegisterRetailerTx) ValidateBasic() error {
	if t.Retailer == (common.Address{}) {
		return ErrZeroAddress
	}
	if t.Name == "" {
		return ErrEmptyField
	}
	return nil
}

type RetailerAuthorizationTx struct {
	Brand    common.Address `json:"brand"`
	Retailer common.Address `json:"retailer"`
}

func (t *RetailerAuthorizationTx) ValidateBasic() error {
	if t.Brand == (common.Address{}) || t.Retailer == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

type SetVolumeTierThresholdTx struct {
	Threshold uint64 `json:"threshold"`
}

type SetRequireProductLinkTx struct {
	Required bool `json:"required"`
}

type CreateDisputeTx struct {
	Product     common.Hash `json:"product"`
	Request     common.Hash `json:"request"`
	Description string      `json:"description"`
	EvidenceURI string      `json:"evidenceURI"`
}

func (t *CreateDisputeTx) ValidateBasic() error {
	if t.Product == (common.Hash{}) || t.Request == (common.Hash{}) {
		return ErrEmptyID
	}
	return nil
}

type VoteDisputeTx struct {
	Dispute uint64 `json:"dispute"`
	InFavor bool   `json:"inFavor"`
}

type ExpireDisputeTx struct {
	Dispute uint64 `json:"dispute"`
}

type authTxTmpl[Tx any] struct {
	Version uint8          `json:"version"`
	Type    AuthTxType     `json:"type"`
	Nonce   uint64         `json:"nonce"`
	Sender  common.Address `json:"sender"`
	Tx      Tx             `json:"tx"`
	Sig     hexutil.Bytes  `json:"sig"`
}

// SigData is the envelope with Sig replaced by ext, normally the chain id.
func (tx *AuthTx) SigData(ext []byte) (dat []byte, err error) {
	ntx := *tx
	ntx.Sig = ext
	dat, err = json.Marshal(ntx)
	return
}

// Sign fills Sender and Sig for key on chainID.
func (tx *AuthTx) Sign(key *ecdsa.PrivateKey, chainID string) error {
	tx.Sender = crypto.PubkeyToAddress(key.PublicKey)
	dat, err := tx.SigData([]byte(chainID))
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(crypto.Keccak256(dat), key)
	if err != nil {
		return err
	}
	tx.Sig = sig
	return nil
}

func (tx *AuthTx) ValidateBasic() error {
	if tx.Version > AuthTxVersion1 {
		return ErrUnsupportedTxVersion
	}
	if tx.Sender == (common.Address{}) {
		return ErrZeroAddress
	}
	if b, ok := tx.Tx.(Basic); ok {
		return b.ValidateBasic()
	}
	return nil
}

func parseAuthTxType(dat []byte) AuthTxType {
	var tx struct {
		Type AuthTxType `json:"type"`
	}
	err := json.Unmarshal(dat, &tx)
	if err != nil {
		return AuthTxTypeUnknown
	}
	return tx.Type
}

func unmarshalAuthTx[Tx any](dat []byte) (btx *AuthTx, err error) {
	var txt authTxTmpl[Tx]
	err = json.Unmarshal(dat, &txt)
	if err != nil {
		return
	}
	btx = new(AuthTx)
	btx.Version = txt.Version
	btx.Type = txt.Type
	btx.Nonce = txt.Nonce
	btx.Sender = txt.Sender
	btx.Tx = &txt.Tx
	btx.Sig = txt.Sig
	return
}

// NewPayload returns an empty payload for tp, for decoding CLI input.
func NewPayload(tp AuthTxType) (any, error) {
	btx, err := unmarshalByType(tp, []byte(`{}`))
	if err != nil {
		return nil, err
	}
	return btx.Tx, nil
}

func UnmarshalAuthTx(dat []byte) (btx *AuthTx, err error) {
	if len(dat) > MaxTxSize {
		return nil, ErrTxTooLarge
	}
	return unmarshalByType(parseAuthTxType(dat), dat)
}

func unmarshalByType(tp AuthTxType, dat []byte) (*AuthTx, error) {
	switch tp {
	case AuthTxTypeTransfer:
		return unmarshalAuthTx[TransferTx](dat)
	case AuthTxTypeApprove:
		return unmarshalAuthTx[ApproveTx](dat)
	case AuthTxTypeRegisterProduct:
		return unmarshalAuthTx[RegisterProductTx](dat)
	case AuthTxTypeGrantCapability, AuthTxTypeRevokeCapability:
		return unmarshalAuthTx[CapabilityTx](dat)
	case AuthTxTypeRegisterVerifier:
		return unmarshalAuthTx[RegisterVerifierTx](dat)
	case AuthTxTypeWithdrawStake:
		return unmarshalAuthTx[WithdrawStakeTx](dat)
	case AuthTxTypeRequestVerification:
		return unmarshalAuthTx[RequestVerificationTx](dat)
	case AuthTxTypeAssignVerifier:
		return unmarshalAuthTx[AssignVerifierTx](dat)
	case AuthTxTypeCompleteVerification:
		return unmarshalAuthTx[CompleteVerificationTx](dat)
	case AuthTxTypeHandleTimeout, AuthTxTypeFinalizeAttestations:
		return unmarshalAuthTx[RequestTx](dat)
	case AuthTxTypeSetFeeBounds:
		return unmarshalAuthTx[SetFeeBoundsTx](dat)
	case AuthTxTypeSetMinStake:
		return unmarshalAuthTx[SetMinStakeTx](dat)
	case AuthTxTypeSetTimeout:
		return unmarshalAuthTx[SetTimeoutTx](dat)
	case AuthTxTypeRegisterSource, AuthTxTypeUpdateSource, AuthTxTypeRevokeSource:
		return unmarshalAuthTx[SourceTx](dat)
	case AuthTxTypeSubmitAttestation:
		return unmarshalAuthTx[SubmitAttestationTx](dat)
	case AuthTxTypeSubmitAttestationTrusted:
		return unmarshalAuthTx[SubmitAttestationTrustedTx](dat)
	case AuthTxTypeRegisterRetailer:
		return unmarshalAuthTx[RegisterRetailerTx](dat)
	case AuthTxTypeAuthorizeRetailer, AuthTxTypeDeauthorizeRetailer:
		return unmarshalAuthTx[RetailerAuthorizationTx](dat)
	case AuthTxTypeSetVolumeTierThreshold:
		return unmarshalAuthTx[SetVolumeTierThresholdTx](dat)
	case AuthTxTypeSetRequireProductLink:
		return unmarshalAuthTx[SetRequireProductLinkTx](dat)
	case AuthTxTypeCreateDispute:
		return unmarshalAuthTx[CreateDisputeTx](dat)
	case AuthTxTypeVoteDispute:
		return unmarshalAuthTx[VoteDisputeTx](dat)
	case AuthTxTypeExpireDispute:
		return unmarshalAuthTx[ExpireDisputeTx](dat)
	}
	return nil, ErrUnsupportedTxType
}

func MarshalAuthTx(btx *AuthTx) (dat []byte, err error) {
	return json.Marshal(btx)
}
