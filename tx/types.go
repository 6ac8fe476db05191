package tx

import (
	"errors"
)

type AuthTxType uint8

const (
	AuthTxTypeUnknown AuthTxType = 0

	AuthTxTypeTransfer         AuthTxType = 1
	AuthTxTypeApprove          AuthTxType = 2
	AuthTxTypeRegisterProduct  AuthTxType = 3
	AuthTxTypeGrantCapability  AuthTxType = 4
	AuthTxTypeRevokeCapability AuthTxType = 5

	AuthTxTypeRegisterVerifier     AuthTxType = 10
	AuthTxTypeWithdrawStake        AuthTxType = 11
	AuthTxTypeRequestVerification  AuthTxType = 12
	AuthTxTypeAssignVerifier       AuthTxType = 13
	AuthTxTypeCompleteVerification AuthTxType = 14
	AuthTxTypeHandleTimeout        AuthTxType = 15
	AuthTxTypeSetFeeBounds         AuthTxType = 16
	AuthTxTypeSetMinStake          AuthTxType = 17
	AuthTxTypeSetTimeout           AuthTxType = 18

	AuthTxTypeRegisterSource           AuthTxType = 20
	AuthTxTypeUpdateSource             AuthTxType = 21
	AuthTxTypeRevokeSource             AuthTxType = 22
	AuthTxTypeSubmitAttestation        AuthTxType = 23
	AuthTxTypeSubmitAttestationTrusted AuthTxType = 24
	AuthTxTypeFinalizeAttestations     AuthTxType = 25

	AuthTxTypeRegisterRetailer       AuthTxType = 30
	AuthTxTypeAuthorizeRetailer      AuthTxType = 31
	AuthTxTypeDeauthorizeRetailer    AuthTxType = 32
	AuthTxTypeSetVolumeTierThreshold AuthTxType = 33
	AuthTxTypeSetRequireProductLink  AuthTxType = 34

	AuthTxTypeCreateDispute AuthTxType = 40
	AuthTxTypeVoteDispute   AuthTxType = 41
	AuthTxTypeExpireDispute AuthTxType = 42
)

var txTypeNames = map[AuthTxType]string{
	AuthTxTypeTransfer:                 "transfer",
	AuthTxTypeApprove:                  "approve",
	AuthTxTypeRegisterProduct:          "register-product",
	AuthTxTypeGrantCapability:          "grant-capability",
	AuthTxTypeRevokeCapability:         "revoke-capability",
	AuthTxTypeRegisterVerifier:         "register-verifier",
	AuthTxTypeWithdrawStake:            "withdraw-stake",
	AuthTxTypeRequestVerification:      "request-verification",
	AuthTxTypeAssignVerifier:           "assign-verifier",
	AuthTxTypeCompleteVerification:     "complete-verification",
	AuthTxTypeHandleTimeout:            "handle-timeout",
	AuthTxTypeSetFeeBounds:             "set-fee-bounds",
	AuthTxTypeSetMinStake:              "set-min-stake",
	AuthTxTypeSetTimeout:               "set-timeout",
	AuthTxTypeRegisterSource:           "register-source",
	AuthTxTypeUpdateSource:             "update-source",
	AuthTxTypeRevokeSource:             "revoke-source",
	AuthTxTypeSubmitAttestation:        "submit-attestation",
	AuthTxTypeSubmitAttestationTrusted: "submit-attestation-trusted",
	AuthTxTypeFinalizeAttestations:     "finalize-attestations",
	AuthTxTypeRegisterRetailer:         "register-retailer",
	AuthTxTypeAuthorizeRetailer:        "authorize-retailer",
	AuthTxTypeDeauthorizeRetailer:      "deauthorize-retailer",
	AuthTxTypeSetVolumeTierThreshold:   "set-volume-tier-threshold",
	AuthTxTypeSetRequireProductLink:    "set-require-product-link",
	AuthTxTypeCreateDispute:            "create-dispute",
	AuthTxTypeVoteDispute:              "vote-dispute",
	AuthTxTypeExpireDispute:            "expire-dispute",
}

func (t AuthTxType) String() string {
	if n, ok := txTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// ParseAuthTxType maps a CLI name back to its type.
func ParseAuthTxType(name string) AuthTxType {
	for t, n := range txTypeNames {
		if n == name {
			return t
		}
	}
	return AuthTxTypeUnknown
}

func TxTypeNames() []string {
	names := make([]string, 0, len(txTypeNames))
	for _, n := range txTypeNames {
		names = append(names, n)
	}
	return names
}

const (
	AuthTxVersion0 uint8 = 0
	AuthTxVersion1 uint8 = 1

	MaxTxSize = 64 * 1024
)

var (
	ErrInvalidTx            = errors.New("invalid tx")
	ErrUnsupportedTxType    = errors.New("unsupported tx type")
	ErrUnmatchedTxType      = errors.New("unmatched tx type")
	ErrUnsupportedTxVersion = errors.New("unsupported tx version")
	ErrTxTooLarge           = errors.New("tx too large")
	ErrZeroAddress          = errors.New("zero address")
	ErrZeroAmount           = errors.New("amount must be positive")
	ErrEmptyID              = errors.New("empty id")
	ErrEmptyField           = errors.New("required field empty")
)
