// Package arbitration re-adjudicates completed verifications through a
// bonded dispute that the active verifier pool votes on.
package arbitration

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/ledger"
	"github.com/calehh/authchain/reputation"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidParams       = errors.New("invalid arbitration params")
	ErrNotCompleted        = errors.New("verification not completed")
	ErrProductMismatch     = errors.New("product does not match verification")
	ErrDisputeOpen         = errors.New("verification already under dispute")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrNotVoter            = errors.New("caller is not an active verifier")
	ErrConflictedVoter     = errors.New("assigned verifier cannot vote on its own verdict")
	ErrAlreadyVoted        = errors.New("caller already voted")
	ErrDisputeClosed       = errors.New("dispute is closed")
	ErrVotingPeriodOver    = errors.New("voting period over")
	ErrVotingPeriodRunning = errors.New("voting period still running")
	ErrDescriptionTooLong  = errors.New("description too long")
)

const MaxDescriptionLength = 1024

var (
	KeyParams   = "params/arbitration"
	KeySequence = "arb/seq"
	KeyDispute  = "arb/d/%d"
	KeyOpen     = "arb/open/%x"
	KeyVote     = "arb/vote/%d/%x"
)

type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected || s == StatusExpired
}

type Params struct {
	DisputeFee      uint64 `json:"disputeFee"`
	Bond            uint64 `json:"bond"`
	RequiredVotes   uint64 `json:"requiredVotes"`
	VoterReward     uint64 `json:"voterReward"`
	VotingPeriodSec int64  `json:"votingPeriodSec"`
}

func DefaultParams() Params {
	return Params{
		DisputeFee:      30,
		Bond:            100,
		RequiredVotes:   3,
		VoterReward:     10,
		VotingPeriodSec: 7 * 24 * 60 * 60,
	}
}

// Validate keeps the reward pool inside the dispute fee, so paying winners
// never draws on other custody funds.
func (p Params) Validate() error {
	if p.RequiredVotes == 0 {
		return fmt.Errorf("%w: required votes must be positive", ErrInvalidParams)
	}
	if p.VotingPeriodSec <= 0 {
		return fmt.Errorf("%w: voting period must be positive", ErrInvalidParams)
	}
	if types.Mul(p.VoterReward, p.RequiredVotes).Gt(types.Mul(p.DisputeFee, 1)) {
		return fmt.Errorf("%w: rewards %d x %d exceed dispute fee %d", ErrInvalidParams, p.VoterReward, p.RequiredVotes, p.DisputeFee)
	}
	return nil
}

type Vote struct {
	Voter   common.Address `json:"voter"`
	InFavor bool           `json:"inFavor"`
}

type Dispute struct {
	ID             uint64         `json:"id"`
	ProductID      common.Hash    `json:"productId"`
	RequestID      common.Hash    `json:"requestId"`
	Initiator      common.Address `json:"initiator"`
	Description    string         `json:"description"`
	EvidenceURI    string         `json:"evidenceURI"`
	Status         Status         `json:"status"`
	VotesFor       uint64         `json:"votesFor"`
	VotesAgainst   uint64         `json:"votesAgainst"`
	InFavor        bool           `json:"inFavor"`
	Fee            uint64         `json:"fee"`
	Bond           uint64         `json:"bond"`
	Verifier       common.Address `json:"verifier"`
	OriginalResult bool           `json:"originalResult"`
	CreatedAt      int64          `json:"createdAt"`
	Deadline       int64          `json:"deadline"`
	ClosedAt       int64          `json:"closedAt"`
	Voters         []Vote         `json:"voters"`
}

// IsExpired reports whether an undecided dispute ran out of voting time.
func (d *Dispute) IsExpired(now int64) bool {
	return !d.Status.Terminal() && now >= d.Deadline
}

// EffectiveStatus is the status a reader at time now observes.
func (d *Dispute) EffectiveStatus(now int64) Status {
	if d.IsExpired(now) {
		return StatusExpired
	}
	return d.Status
}

// VerifierPool is the slice of the verification lifecycle disputes need.
type VerifierPool interface {
	GetRequest(ctx *types.Context, id common.Hash) (*verification.Request, error)
	IsActiveVerifier(ctx *types.Context, a common.Address) (bool, error)
}

type Keeper struct {
	logger     cmtlog.Logger
	ledger     ledger.Ledger
	verifiers  VerifierPool
	reputation verification.ReputationSink
}

func NewKeeper(l ledger.Ledger, pool VerifierPool, rep verification.ReputationSink, logger cmtlog.Logger) *Keeper {
	return &Keeper{
		logger:     logger.With("module", "arbitration"),
		ledger:     l,
		verifiers:  pool,
		reputation: rep,
	}
}

func disputeKey(id uint64) []byte {
	return []byte(fmt.Sprintf(KeyDispute, id))
}

func openKey(request common.Hash) []byte {
	return []byte(fmt.Sprintf(KeyOpen, request.Bytes()))
}

func voteKey(id uint64, voter common.Address) []byte {
	return []byte(fmt.Sprintf(KeyVote, id, voter.Bytes()))
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

func (k *Keeper) GetDispute(ctx *types.Context, id uint64) (*Dispute, error) {
	var d Dispute
	found, err := store.GetJSON(ctx.KVStore(), disputeKey(id), &d)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDisputeNotFound
	}
	return &d, nil
}

func (k *Keeper) setDispute(ctx *types.Context, d *Dispute) error {
	return store.SetJSON(ctx.KVStore(), disputeKey(d.ID), d)
}

// OpenDispute returns the unresolved dispute on request, if any.
func (k *Keeper) OpenDispute(ctx *types.Context, request common.Hash) (uint64, bool, error) {
	ok, err := store.Has(ctx.KVStore(), openKey(request))
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := store.GetUint64(ctx.KVStore(), openKey(request))
	return id, true, err
}

func (k *Keeper) CreateDispute(ctx *types.Context, product, request common.Hash, description, evidenceURI string) (uint64, error) {
	if len(description) > MaxDescriptionLength {
		return 0, ErrDescriptionTooLong
	}
	if len(evidenceURI) > verification.MaxEvidenceURILength {
		return 0, verification.ErrEvidenceURITooLong
	}
	r, err := k.verifiers.GetRequest(ctx, request)
	if err != nil {
		return 0, err
	}
	if !r.Completed {
		return 0, ErrNotCompleted
	}
	if r.ProductID != product {
		return 0, ErrProductMismatch
	}
	if _, open, err := k.OpenDispute(ctx, request); err != nil {
		return 0, err
	} else if open {
		return 0, ErrDisputeOpen
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	seq, err := store.GetUint64(ctx.KVStore(), []byte(KeySequence))
	if err != nil {
		return 0, err
	}
	id := seq + 1
	d := &Dispute{
		ID:             id,
		ProductID:      product,
		RequestID:      request,
		Initiator:      ctx.Sender(),
		Description:    description,
		EvidenceURI:    evidenceURI,
		Status:         StatusOpen,
		Fee:            p.DisputeFee,
		Bond:           p.Bond,
		Verifier:       r.AssignedVerifier,
		OriginalResult: r.Result,
		CreatedAt:      ctx.Now(),
		Deadline:       ctx.Now() + p.VotingPeriodSec,
	}
	if err = store.SetUint64(ctx.KVStore(), []byte(KeySequence), id); err != nil {
		return 0, err
	}
	if err = store.SetUint64(ctx.KVStore(), openKey(request), id); err != nil {
		return 0, err
	}
	if err = k.setDispute(ctx, d); err != nil {
		return 0, err
	}
	total, err := types.SafeAdd(d.Fee, d.Bond)
	if err != nil {
		return 0, err
	}
	if err = ledger.Pull(ctx, k.ledger, total); err != nil {
		return 0, err
	}
	ctx.EmitEvent(types.EncodeEventDisputeCreated(&types.EventDisputeCreated{
		Dispute:   id,
		Request:   request,
		Product:   product,
		Initiator: d.Initiator,
		Deadline:  d.Deadline,
	}))
	return id, nil
}

func (k *Keeper) VoteOnDispute(ctx *types.Context, id uint64, inFavor bool) error {
	d, err := k.GetDispute(ctx, id)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrDisputeClosed, d.Status)
	}
	if d.IsExpired(ctx.Now()) {
		return ErrVotingPeriodOver
	}
	voter := ctx.Sender()
	active, err := k.verifiers.IsActiveVerifier(ctx, voter)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotVoter
	}
	if voter == d.Verifier {
		return ErrConflictedVoter
	}
	voted, err := store.Has(ctx.KVStore(), voteKey(id, voter))
	if err != nil {
		return err
	}
	if voted {
		return ErrAlreadyVoted
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}

	if err = ctx.KVStore().Set(voteKey(id, voter), []byte{1}); err != nil {
		return err
	}
	d.Voters = append(d.Voters, Vote{Voter: voter, InFavor: inFavor})
	if inFavor {
		d.VotesFor += 1
	} else {
		d.VotesAgainst += 1
	}
	d.Status = StatusUnderReview
	switch {
	case d.VotesFor >= p.RequiredVotes:
		d.Status = StatusResolved
		d.InFavor = true
	case d.VotesAgainst >= p.RequiredVotes:
		d.Status = StatusRejected
	}
	if d.Status.Terminal() {
		d.ClosedAt = ctx.Now()
	}
	if err = k.setDispute(ctx, d); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventDisputeVoted(&types.EventDisputeVoted{
		Dispute:      id,
		Voter:        voter,
		InFavor:      inFavor,
		VotesFor:     d.VotesFor,
		VotesAgainst: d.VotesAgainst,
	}))
	if !d.Status.Terminal() {
		return nil
	}
	return k.settle(ctx, d, p)
}

// settle runs after the terminal status is stored: it pays winning voters,
// routes the bond and the fee remainder, then feeds the outcome back to
// reputation.
func (k *Keeper) settle(ctx *types.Context, d *Dispute, p Params) error {
	if err := ctx.KVStore().Delete(openKey(d.RequestID)); err != nil {
		return err
	}
	paid := uint64(0)
	for _, v := range d.Voters {
		if v.InFavor != d.InFavor || paid+p.VoterReward > d.Fee {
			continue
		}
		if err := ledger.Pay(ctx, k.ledger, v.Voter, p.VoterReward); err != nil {
			return err
		}
		paid += p.VoterReward
	}
	bondTo := d.Initiator
	if d.Status == StatusRejected {
		bondTo = types.TreasuryAddress
	}
	if err := ledger.Pay(ctx, k.ledger, bondTo, d.Bond); err != nil {
		return err
	}
	if err := ledger.Pay(ctx, k.ledger, types.TreasuryAddress, d.Fee-paid); err != nil {
		return err
	}
	k.logger.Info("dispute settled", "dispute", d.ID, "status", d.Status, "rewarded", paid)
	ctx.EmitEvent(types.EncodeEventDisputeResolved(&types.EventDisputeResolved{
		Dispute: d.ID,
		Status:  string(d.Status),
		InFavor: d.InFavor,
	}))
	return k.feedback(ctx, d)
}

// feedback reports the arbitrated verdict. A dispute decided in favor of the
// initiator inverts the original result.
func (k *Keeper) feedback(ctx *types.Context, d *Dispute) error {
	r, err := k.verifiers.GetRequest(ctx, d.RequestID)
	if err != nil {
		return err
	}
	retailer, err := k.reputation.IsRegistered(ctx, r.Requester)
	if err != nil || !retailer {
		return err
	}
	success := d.OriginalResult
	if d.InFavor {
		success = !success
	}
	_, err = k.reputation.ProcessVerificationResult(ctx, types.ArbitrationAddress, reputation.Result{
		Verification: d.RequestID,
		Product:      d.ProductID,
		Retailer:     r.Requester,
		Success:      success,
		Supersede:    true,
	})
	return err
}

// ExpireDispute closes a dispute whose voting period passed without a
// quorum. The initiator gets the bond back; the fee goes to the treasury.
func (k *Keeper) ExpireDispute(ctx *types.Context, id uint64) error {
	d, err := k.GetDispute(ctx, id)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrDisputeClosed, d.Status)
	}
	if !d.IsExpired(ctx.Now()) {
		return ErrVotingPeriodRunning
	}
	d.Status = StatusExpired
	d.ClosedAt = ctx.Now()
	if err = k.setDispute(ctx, d); err != nil {
		return err
	}
	if err = ctx.KVStore().Delete(openKey(d.RequestID)); err != nil {
		return err
	}
	if err = ledger.Pay(ctx, k.ledger, d.Initiator, d.Bond); err != nil {
		return err
	}
	if err = ledger.Pay(ctx, k.ledger, types.TreasuryAddress, d.Fee); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventDisputeResolved(&types.EventDisputeResolved{Dispute: id, Status: string(StatusExpired)}))
	return nil
}
