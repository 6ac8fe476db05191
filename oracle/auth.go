package oracle

import (
	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/types"
	"github.com/ethereum/go-ethereum/common"
)

// Submission is what an authenticator inspects. Signature is used by the
// signed path, Source by the delegated path.
type Submission struct {
	Attestation Attestation    `json:"attestation"`
	Signature   []byte         `json:"signature,omitempty"`
	Source      common.Address `json:"source,omitempty"`
}

// Authenticator maps a submission to the source identity it speaks for.
// Sequenced authenticators have the per-source nonce enforced and advanced.
type Authenticator interface {
	Authenticate(ctx *types.Context, sub *Submission) (common.Address, error)
	Sequenced() bool
	Name() string
}

type SignatureAuthenticator struct {
	ChainID int64
}

func (a SignatureAuthenticator) Authenticate(_ *types.Context, sub *Submission) (common.Address, error) {
	return RecoverAttester(a.ChainID, &sub.Attestation, sub.Signature)
}

func (SignatureAuthenticator) Sequenced() bool { return true }
func (SignatureAuthenticator) Name() string    { return "signed" }

// DelegatedAuthenticator trusts the transaction sender to vouch for
// sub.Source; the sender must hold the trusted-submitter capability.
type DelegatedAuthenticator struct {
	Access *access.Keeper
}

func (a DelegatedAuthenticator) Authenticate(ctx *types.Context, sub *Submission) (common.Address, error) {
	if err := a.Access.Require(ctx, access.CapTrustedSubmitter, ctx.Sender()); err != nil {
		return common.Address{}, err
	}
	return sub.Source, nil
}

func (DelegatedAuthenticator) Sequenced() bool { return false }
func (DelegatedAuthenticator) Name() string    { return "trusted" }
