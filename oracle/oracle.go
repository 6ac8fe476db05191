// Package oracle accumulates independent, authenticated attestations per
// verification request into a weighted quorum/threshold signal.
package oracle

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrZeroAddress       = errors.New("zero source address")
	ErrZeroWeight        = errors.New("source weight must be positive")
	ErrUnknownKind       = errors.New("unknown source kind")
	ErrSourceExists      = errors.New("source already registered")
	ErrSourceNotFound    = errors.New("source not registered")
	ErrSourceInactive    = errors.New("source is not active")
	ErrDeadlineElapsed   = errors.New("attestation deadline elapsed")
	ErrBadNonce          = errors.New("attestation nonce mismatch")
	ErrAlreadyAttested   = errors.New("source already attested this request")
	ErrProductMismatch   = errors.New("attestation product differs from request")
	ErrEmptyRequest      = errors.New("empty request id")
	ErrFinalized         = errors.New("attestations already finalized")
	ErrInvalidParams     = errors.New("invalid oracle params")
	ErrNothingToFinalize = errors.New("no attestations for request")
)

var (
	KeyParams      = "params/oracle"
	KeySource      = "oracle/src/%x"
	KeyNonce       = "oracle/nonce/%x"
	KeyAttestation = "oracle/att/%x/%x"
	KeyAggregate   = "oracle/agg/%x"
)

type SourceKind uint8

const (
	SourceSensor SourceKind = iota
	SourceHuman
)

func (k SourceKind) String() string {
	switch k {
	case SourceSensor:
		return "sensor"
	case SourceHuman:
		return "human"
	}
	return "unknown"
}

type Source struct {
	Address      common.Address `json:"address"`
	Kind         SourceKind     `json:"kind"`
	Weight       uint64         `json:"weight"`
	Active       bool           `json:"active"`
	RegisteredAt int64          `json:"registeredAt"`
}

type Attestation struct {
	RequestID    common.Hash `json:"requestId"`
	ProductID    common.Hash `json:"productId"`
	Verdict      bool        `json:"verdict"`
	EvidenceURI  string      `json:"evidenceURI"`
	ReadingCode  uint32      `json:"readingCode"`
	ReadingValue int64       `json:"readingValue"`
	Timestamp    uint64      `json:"timestamp"`
	Deadline     uint64      `json:"deadline"`
	Nonce        uint64      `json:"nonce"`
}

type record struct {
	Attestation
	Source common.Address `json:"source"`
	Weight uint64         `json:"weight"`
	Path   string         `json:"path"`
}

// tally is the stored part of an aggregate. Quorum and threshold are applied
// on read so that a params change is reflected immediately.
type tally struct {
	Product     common.Hash `json:"product"`
	TotalWeight uint64      `json:"totalWeight"`
	PassWeight  uint64      `json:"passWeight"`
	Count       uint64      `json:"count"`
	Finalized   bool        `json:"finalized"`
}

type Aggregate struct {
	Request       common.Hash `json:"request"`
	Product       common.Hash `json:"product"`
	QuorumReached bool        `json:"quorumReached"`
	Passed        bool        `json:"passed"`
	TotalWeight   uint64      `json:"totalWeight"`
	PassWeight    uint64      `json:"passWeight"`
	Count         uint64      `json:"count"`
	Finalized     bool        `json:"finalized"`
}

// Decisive reports whether the aggregate can corroborate a verdict.
func (a *Aggregate) Decisive() bool {
	return a.QuorumReached
}

type Params struct {
	QuorumWeight     uint64 `json:"quorumWeight"`
	PassBpsThreshold uint64 `json:"passBpsThreshold"`
	// ChainID is the EIP-712 domain chain id sources sign against.
	ChainID int64 `json:"chainId"`
}

func DefaultParams() Params {
	return Params{QuorumWeight: 200, PassBpsThreshold: 6000, ChainID: 1}
}

func (p Params) Validate() error {
	if p.QuorumWeight == 0 {
		return fmt.Errorf("%w: quorum weight must be positive", ErrInvalidParams)
	}
	if p.PassBpsThreshold == 0 || p.PassBpsThreshold > types.BpsDenominator {
		return fmt.Errorf("%w: pass threshold %d out of range", ErrInvalidParams, p.PassBpsThreshold)
	}
	return nil
}

type Keeper struct {
	logger cmtlog.Logger
	access *access.Keeper
}

func NewKeeper(acc *access.Keeper, logger cmtlog.Logger) *Keeper {
	return &Keeper{logger: logger.With("module", "oracle"), access: acc}
}

func sourceKey(a common.Address) []byte {
	return []byte(fmt.Sprintf(KeySource, a.Bytes()))
}

func nonceKey(a common.Address) []byte {
	return []byte(fmt.Sprintf(KeyNonce, a.Bytes()))
}

func attestationKey(request common.Hash, source common.Address) []byte {
	return []byte(fmt.Sprintf(KeyAttestation, request.Bytes(), source.Bytes()))
}

func aggregateKey(request common.Hash) []byte {
	return []byte(fmt.Sprintf(KeyAggregate, request.Bytes()))
}

func (k *Keeper) GetParams(ctx *types.Context) (Params, error) {
	p := DefaultParams()
	_, err := store.GetJSON(ctx.KVStore(), []byte(KeyParams), &p)
	return p, err
}

func (k *Keeper) SetParams(ctx *types.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return store.SetJSON(ctx.KVStore(), []byte(KeyParams), &p)
}

// Authenticators returns the signed and delegated submission paths.
func (k *Keeper) Authenticators(ctx *types.Context) (signed, trusted Authenticator, err error) {
	p, err := k.GetParams(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SignatureAuthenticator{ChainID: p.ChainID}, DelegatedAuthenticator{Access: k.access}, nil
}

func (k *Keeper) GetSource(ctx *types.Context, a common.Address) (*Source, error) {
	var s Source
	found, err := store.GetJSON(ctx.KVStore(), sourceKey(a), &s)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSourceNotFound
	}
	return &s, nil
}

func (k *Keeper) Nonce(ctx *types.Context, a common.Address) (uint64, error) {
	return store.GetUint64(ctx.KVStore(), nonceKey(a))
}

func (k *Keeper) emitSource(ctx *types.Context, s *Source, action string) {
	ctx.EmitEvent(types.EncodeEventSource(&types.EventSource{
		Source: s.Address,
		Action: action,
		Kind:   s.Kind.String(),
		Weight: s.Weight,
		Active: s.Active,
	}))
}

func validateSource(a common.Address, kind SourceKind, weight uint64) error {
	if a == (common.Address{}) {
		return ErrZeroAddress
	}
	if kind != SourceSensor && kind != SourceHuman {
		return ErrUnknownKind
	}
	if weight == 0 {
		return ErrZeroWeight
	}
	return nil
}

func (k *Keeper) RegisterSource(ctx *types.Context, a common.Address, kind SourceKind, weight uint64) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	if err := validateSource(a, kind, weight); err != nil {
		return err
	}
	ok, err := store.Has(ctx.KVStore(), sourceKey(a))
	if err != nil {
		return err
	}
	if ok {
		return ErrSourceExists
	}
	s := &Source{Address: a, Kind: kind, Weight: weight, Active: true, RegisteredAt: ctx.Now()}
	if err = store.SetJSON(ctx.KVStore(), sourceKey(a), s); err != nil {
		return err
	}
	k.emitSource(ctx, s, "registered")
	return nil
}

// UpdateSource changes kind and weight and reactivates a revoked source.
// The nonce sequence is kept.
func (k *Keeper) UpdateSource(ctx *types.Context, a common.Address, kind SourceKind, weight uint64) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	if err := validateSource(a, kind, weight); err != nil {
		return err
	}
	s, err := k.GetSource(ctx, a)
	if err != nil {
		return err
	}
	s.Kind = kind
	s.Weight = weight
	s.Active = true
	if err = store.SetJSON(ctx.KVStore(), sourceKey(a), s); err != nil {
		return err
	}
	k.emitSource(ctx, s, "updated")
	return nil
}

func (k *Keeper) RevokeSource(ctx *types.Context, a common.Address) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	s, err := k.GetSource(ctx, a)
	if err != nil {
		return err
	}
	s.Weight = 0
	s.Active = false
	if err = store.SetJSON(ctx.KVStore(), sourceKey(a), s); err != nil {
		return err
	}
	k.emitSource(ctx, s, "revoked")
	return nil
}

func (k *Keeper) SubmitAttestation(ctx *types.Context, att Attestation, sig []byte) error {
	signed, _, err := k.Authenticators(ctx)
	if err != nil {
		return err
	}
	return k.Submit(ctx, signed, &Submission{Attestation: att, Signature: sig})
}

func (k *Keeper) SubmitAttestationTrusted(ctx *types.Context, att Attestation, source common.Address) error {
	_, trusted, err := k.Authenticators(ctx)
	if err != nil {
		return err
	}
	return k.Submit(ctx, trusted, &Submission{Attestation: att, Source: source})
}

// Submit is the single acceptance path shared by every authenticator.
func (k *Keeper) Submit(ctx *types.Context, auth Authenticator, sub *Submission) error {
	att := sub.Attestation
	if att.RequestID == (common.Hash{}) {
		return ErrEmptyRequest
	}
	src, err := auth.Authenticate(ctx, sub)
	if err != nil {
		return err
	}
	s, err := k.GetSource(ctx, src)
	if err != nil {
		return err
	}
	if !s.Active || s.Weight == 0 {
		return ErrSourceInactive
	}
	if now := ctx.Now(); now < 0 || uint64(now) > att.Deadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlineElapsed, att.Deadline, now)
	}
	if auth.Sequenced() {
		nonce, err := k.Nonce(ctx, src)
		if err != nil {
			return err
		}
		if nonce != att.Nonce {
			return fmt.Errorf("%w: expected %d, got %d", ErrBadNonce, nonce, att.Nonce)
		}
	}

	var t tally
	if _, err = store.GetJSON(ctx.KVStore(), aggregateKey(att.RequestID), &t); err != nil {
		return err
	}
	if t.Finalized {
		return ErrFinalized
	}
	if t.Count > 0 && t.Product != att.ProductID {
		return ErrProductMismatch
	}
	attested, err := store.Has(ctx.KVStore(), attestationKey(att.RequestID, src))
	if err != nil {
		return err
	}
	if attested {
		return ErrAlreadyAttested
	}

	rec := &record{Attestation: att, Source: src, Weight: s.Weight, Path: auth.Name()}
	if err = store.SetJSON(ctx.KVStore(), attestationKey(att.RequestID, src), rec); err != nil {
		return err
	}
	if auth.Sequenced() {
		if err = store.SetUint64(ctx.KVStore(), nonceKey(src), att.Nonce+1); err != nil {
			return err
		}
	}
	t.Product = att.ProductID
	if t.TotalWeight, err = types.SafeAdd(t.TotalWeight, s.Weight); err != nil {
		return err
	}
	if att.Verdict {
		if t.PassWeight, err = types.SafeAdd(t.PassWeight, s.Weight); err != nil {
			return err
		}
	}
	t.Count += 1
	if err = store.SetJSON(ctx.KVStore(), aggregateKey(att.RequestID), &t); err != nil {
		return err
	}

	k.logger.Debug("attestation accepted", "request", att.RequestID.Hex(), "source", src.Hex(), "path", auth.Name())
	ctx.EmitEvent(types.EncodeEventAttestationReceived(&types.EventAttestationReceived{
		Request: att.RequestID,
		Product: att.ProductID,
		Source:  src,
		Verdict: att.Verdict,
		Weight:  s.Weight,
		Nonce:   att.Nonce,
		Trusted: !auth.Sequenced(),
	}))
	return nil
}

func (k *Keeper) GetAttestation(ctx *types.Context, request common.Hash, source common.Address) (*Attestation, bool, error) {
	var rec record
	found, err := store.GetJSON(ctx.KVStore(), attestationKey(request, source), &rec)
	if err != nil || !found {
		return nil, found, err
	}
	return &rec.Attestation, true, nil
}

func (k *Keeper) GetAggregate(ctx *types.Context, request common.Hash) (*Aggregate, error) {
	var t tally
	if _, err := store.GetJSON(ctx.KVStore(), aggregateKey(request), &t); err != nil {
		return nil, err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	return evaluate(request, &t, p), nil
}

func evaluate(request common.Hash, t *tally, p Params) *Aggregate {
	agg := &Aggregate{
		Request:     request,
		Product:     t.Product,
		TotalWeight: t.TotalWeight,
		PassWeight:  t.PassWeight,
		Count:       t.Count,
		Finalized:   t.Finalized,
	}
	agg.QuorumReached = t.TotalWeight >= p.QuorumWeight
	agg.Passed = t.TotalWeight > 0 &&
		!types.Mul(t.PassWeight, types.BpsDenominator).Lt(types.Mul(p.PassBpsThreshold, t.TotalWeight))
	return agg
}

// Finalize seals the request: later attestations are rejected.
func (k *Keeper) Finalize(ctx *types.Context, request common.Hash) (*Aggregate, error) {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return nil, err
	}
	var t tally
	found, err := store.GetJSON(ctx.KVStore(), aggregateKey(request), &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNothingToFinalize
	}
	if t.Finalized {
		return nil, ErrFinalized
	}
	t.Finalized = true
	if err = store.SetJSON(ctx.KVStore(), aggregateKey(request), &t); err != nil {
		return nil, err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	agg := evaluate(request, &t, p)
	ctx.EmitEvent(types.EncodeEventAttestationsFinalized(&types.EventAttestationsFinalized{
		Request:       request,
		QuorumReached: agg.QuorumReached,
		Passed:        agg.Passed,
		TotalWeight:   agg.TotalWeight,
		PassWeight:    agg.PassWeight,
		Count:         agg.Count,
	}))
	return agg, nil
}
