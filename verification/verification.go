// Package verification runs the stake-backed verifier marketplace: verifier
// registration, the request/assignment/completion state machine and slashing
// for assignments left open past the timeout.
package verification

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/ledger"
	"github.com/calehh/authchain/oracle"
	"github.com/calehh/authchain/registry"
	"github.com/calehh/authchain/reputation"
	"github.com/calehh/authchain/revenue"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrStakeTooLow         = errors.New("stake below minimum")
	ErrVerifierActive      = errors.New("verifier already active")
	ErrVerifierNotActive   = errors.New("verifier not active")
	ErrPendingAssignments  = errors.New("verifier has open assignments")
	ErrStakeExhausted      = errors.New("stake cannot back another assignment")
	ErrProductUnknown      = errors.New("product not registered")
	ErrRequestNotFound     = errors.New("verification request not found")
	ErrAlreadyAssigned     = errors.New("request already assigned")
	ErrNotAssigned         = errors.New("request not assigned")
	ErrNotAssignedVerifier = errors.New("caller is not the assigned verifier")
	ErrAlreadyCompleted    = errors.New("request already completed")
	ErrTimedOut            = errors.New("request timed out")
	ErrTimeoutNotReached   = errors.New("timeout window not elapsed")
	ErrNotCorroborated     = errors.New("oracle aggregate does not corroborate result")
	ErrEvidenceURITooLong  = errors.New("evidence uri too long")
)

const MaxEvidenceURILength = 512

var (
	KeyParams   = "params/verification"
	KeyVerifier = "ver/v/%x"
	KeyRequest  = "ver/r/%x"
	KeySequence = "ver/seq/%x"
)

type Verifier struct {
	Address                 common.Address `json:"address"`
	StakedAmount            uint64         `json:"stakedAmount"`
	IsActive                bool           `json:"isActive"`
	TotalVerifications      uint64         `json:"totalVerifications"`
	SuccessfulVerifications uint64         `json:"successfulVerifications"`
	OpenAssignments         uint64         `json:"openAssignments"`
	Slashed                 uint64         `json:"slashed"`
	RegisteredAt            int64          `json:"registeredAt"`
}

type Status string

const (
	StatusRequested Status = "requested"
	StatusAssigned  Status = "assigned"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
)

type Request struct {
	ID               common.Hash    `json:"id"`
	ProductID        common.Hash    `json:"productId"`
	Requester        common.Address `json:"requester"`
	ProductValue     uint64         `json:"productValue"`
	Fee              uint64         `json:"fee"`
	AssignedVerifier common.Address `json:"assignedVerifier"`
	Completed        bool           `json:"completed"`
	Result           bool           `json:"result"`
	TimedOut         bool           `json:"timedOut"`
	EvidenceURI      string         `json:"evidenceURI,omitempty"`
	EvidenceHash     common.Hash    `json:"evidenceHash"`
	CreatedAt        int64          `json:"createdAt"`
	AssignedAt       int64          `json:"assignedAt"`
	CompletedAt      int64          `json:"completedAt"`
}

func (r *Request) Assigned() bool {
	return r.AssignedVerifier != (common.Address{})
}

// IsExpired reports whether the assignment has outlived its timeout window
// and can be slashed. It is evaluated lazily on reads and on HandleTimeout.
func (r *Request) IsExpired(timeout, now int64) bool {
	return r.Assigned() && !r.Completed && !r.TimedOut && now >= r.AssignedAt+timeout
}

func (r *Request) Status(timeout, now int64) Status {
	switch {
	case r.Completed:
		return StatusCompleted
	case r.TimedOut:
		return StatusTimedOut
	case r.IsExpired(timeout, now):
		return StatusExpired
	case r.Assigned():
		return StatusAssigned
	}
	return StatusRequested
}

// ReputationSink receives completion outcomes for retailers.
type ReputationSink interface {
	IsRegistered(ctx *types.Context, retailer common.Address) (bool, error)
	ProcessVerificationResult(ctx *types.Context, caller common.Address, res reputation.Result) (bool, error)
}

type Corroborator interface {
	GetAggregate(ctx *types.Context, request common.Hash) (*oracle.Aggregate, error)
}

type Keeper struct {
	logger     cmtlog.Logger
	access     *access.Keeper
	ledger     ledger.Ledger
	products   registry.ProductRegistry
	revenue    revenue.Distributor
	reputation ReputationSink
	oracle     Corroborator
}

func NewKeeper(
	acc *access.Keeper,
	l ledger.Ledger,
	products registry.ProductRegistry,
	rev revenue.Distributor,
	rep ReputationSink,
	orc Corroborator,
	logger cmtlog.Logger,
) *Keeper {
	return &Keeper{
		logger:     logger.With("module", "verification"),
		access:     acc,
		ledger:     l,
		products:   products,
		revenue:    rev,
		reputation: rep,
		oracle:     orc,
	}
}

func verifierKey(a common.Address) []byte {
	return []byte(fmt.Sprintf(KeyVerifier, a.Bytes()))
}

func requestKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf(KeyRequest, id.Bytes()))
}

func sequenceKey(a common.Address) []byte {
	return []byte(fmt.Sprintf(KeySequence, a.Bytes()))
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

func (k *Keeper) GetVerifier(ctx *types.Context, a common.Address) (*Verifier, bool, error) {
	var v Verifier
	found, err := store.GetJSON(ctx.KVStore(), verifierKey(a), &v)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &Verifier{Address: a}, false, nil
	}
	return &v, true, nil
}

func (k *Keeper) IsActiveVerifier(ctx *types.Context, a common.Address) (bool, error) {
	v, _, err := k.GetVerifier(ctx, a)
	if err != nil {
		return false, err
	}
	return v.IsActive, nil
}

func (k *Keeper) setVerifier(ctx *types.Context, v *Verifier) error {
	return store.SetJSON(ctx.KVStore(), verifierKey(v.Address), v)
}

func (k *Keeper) GetRequest(ctx *types.Context, id common.Hash) (*Request, error) {
	var r Request
	found, err := store.GetJSON(ctx.KVStore(), requestKey(id), &r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (k *Keeper) setRequest(ctx *types.Context, r *Request) error {
	return store.SetJSON(ctx.KVStore(), requestKey(r.ID), r)
}

func (k *Keeper) RegisterVerifier(ctx *types.Context, stake uint64) error {
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	if stake < p.MinStake {
		return fmt.Errorf("%w: %d < %d", ErrStakeTooLow, stake, p.MinStake)
	}
	v, _, err := k.GetVerifier(ctx, ctx.Sender())
	if err != nil {
		return err
	}
	if v.IsActive {
		return ErrVerifierActive
	}
	v.IsActive = true
	v.StakedAmount = stake
	v.RegisteredAt = ctx.Now()
	if err = k.setVerifier(ctx, v); err != nil {
		return err
	}
	if err = k.access.Grant(ctx, access.CapVerifier, v.Address); err != nil {
		return err
	}
	if err = ledger.Pull(ctx, k.ledger, stake); err != nil {
		return err
	}
	k.logger.Info("verifier registered", "verifier", v.Address.Hex(), "stake", stake)
	ctx.EmitEvent(types.EncodeEventVerifierRegistered(&types.EventVerifierRegistered{Verifier: v.Address, Stake: stake}))
	return nil
}

func (k *Keeper) WithdrawStake(ctx *types.Context) error {
	v, _, err := k.GetVerifier(ctx, ctx.Sender())
	if err != nil {
		return err
	}
	if !v.IsActive {
		return ErrVerifierNotActive
	}
	if v.OpenAssignments > 0 {
		return fmt.Errorf("%w: %d open", ErrPendingAssignments, v.OpenAssignments)
	}
	amount := v.StakedAmount
	v.IsActive = false
	v.StakedAmount = 0
	if err = k.setVerifier(ctx, v); err != nil {
		return err
	}
	if err = k.access.Revoke(ctx, access.CapVerifier, v.Address); err != nil {
		return err
	}
	if err = ledger.Pay(ctx, k.ledger, v.Address, amount); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventStakeWithdrawn(&types.EventStakeWithdrawn{Verifier: v.Address, Amount: amount}))
	return nil
}

func (k *Keeper) CalculateVerificationFee(ctx *types.Context, value uint64) (uint64, error) {
	p, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	return CalculateFee(p, value), nil
}

// requestID mixes the product, the requester, the block height and a
// per-requester sequence so repeated requests for one product never collide.
func requestID(product common.Hash, requester common.Address, height, seq uint64) common.Hash {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], height)
	binary.BigEndian.PutUint64(buf[8:], seq)
	return crypto.Keccak256Hash(product.Bytes(), requester.Bytes(), buf)
}

func (k *Keeper) RequestVerification(ctx *types.Context, product common.Hash, value uint64) (common.Hash, error) {
	ok, err := k.products.IsRegistered(ctx, product)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrProductUnknown, product.Hex())
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	requester := ctx.Sender()
	seq, err := store.GetUint64(ctx.KVStore(), sequenceKey(requester))
	if err != nil {
		return common.Hash{}, err
	}
	if err = store.SetUint64(ctx.KVStore(), sequenceKey(requester), seq+1); err != nil {
		return common.Hash{}, err
	}
	r := &Request{
		ID:           requestID(product, requester, ctx.Height(), seq),
		ProductID:    product,
		Requester:    requester,
		ProductValue: value,
		Fee:          CalculateFee(p, value),
		CreatedAt:    ctx.Now(),
	}
	if err = k.setRequest(ctx, r); err != nil {
		return common.Hash{}, err
	}
	if err = ledger.Pull(ctx, k.ledger, r.Fee); err != nil {
		return common.Hash{}, err
	}
	ctx.EmitEvent(types.EncodeEventVerificationRequested(&types.EventVerificationRequested{
		Request:      r.ID,
		Product:      product,
		Requester:    requester,
		ProductValue: value,
		Fee:          r.Fee,
	}))
	return r.ID, nil
}

func (k *Keeper) AssignVerifier(ctx *types.Context, id common.Hash, verifier common.Address) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	r, err := k.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case r.Completed:
		return ErrAlreadyCompleted
	case r.TimedOut:
		return ErrTimedOut
	case r.Assigned():
		return ErrAlreadyAssigned
	}
	v, _, err := k.GetVerifier(ctx, verifier)
	if err != nil {
		return err
	}
	if !v.IsActive {
		return fmt.Errorf("%w: %s", ErrVerifierNotActive, verifier.Hex())
	}
	if v.StakedAmount <= v.OpenAssignments {
		return fmt.Errorf("%w: stake %d, open %d", ErrStakeExhausted, v.StakedAmount, v.OpenAssignments)
	}
	r.AssignedVerifier = verifier
	r.AssignedAt = ctx.Now()
	if err = k.setRequest(ctx, r); err != nil {
		return err
	}
	v.OpenAssignments += 1
	if err = k.setVerifier(ctx, v); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventVerifierAssigned(&types.EventVerifierAssigned{Request: id, Verifier: verifier}))
	return nil
}

func (k *Keeper) corroborate(ctx *types.Context, r *Request, result bool) error {
	agg, err := k.oracle.GetAggregate(ctx, r.ID)
	if err != nil {
		return err
	}
	if !agg.Decisive() || agg.Passed != result {
		return fmt.Errorf("%w: quorum=%t passed=%t", ErrNotCorroborated, agg.QuorumReached, agg.Passed)
	}
	return nil
}

// CompleteVerification records the assigned verifier's verdict. The request
// is marked completed before any payout or notification runs.
func (k *Keeper) CompleteVerification(ctx *types.Context, id common.Hash, result bool, evidenceURI string) error {
	if len(evidenceURI) > MaxEvidenceURILength {
		return ErrEvidenceURITooLong
	}
	r, err := k.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case r.Completed:
		return ErrAlreadyCompleted
	case r.TimedOut:
		return ErrTimedOut
	case !r.Assigned():
		return ErrNotAssigned
	case r.AssignedVerifier != ctx.Sender():
		return ErrNotAssignedVerifier
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	if p.RequireOracleCorroboration {
		if err = k.corroborate(ctx, r, result); err != nil {
			return err
		}
	}

	r.Completed = true
	r.Result = result
	r.EvidenceURI = evidenceURI
	r.EvidenceHash = crypto.Keccak256Hash([]byte(evidenceURI))
	r.CompletedAt = ctx.Now()
	if err = k.setRequest(ctx, r); err != nil {
		return err
	}
	v, _, err := k.GetVerifier(ctx, r.AssignedVerifier)
	if err != nil {
		return err
	}
	v.TotalVerifications += 1
	if result {
		v.SuccessfulVerifications += 1
	}
	if v.OpenAssignments > 0 {
		v.OpenAssignments -= 1
	}
	if err = k.setVerifier(ctx, v); err != nil {
		return err
	}

	brand, err := k.products.GetBrandOwner(ctx, r.ProductID)
	if err != nil {
		return err
	}
	if err = k.revenue.DistributeRevenue(ctx, v.Address, brand, r.Fee); err != nil {
		return err
	}
	if result {
		if err = k.products.RecordVerification(ctx, r.ProductID, r.EvidenceHash); err != nil {
			return err
		}
	}
	ctx.EmitEvent(types.EncodeEventVerificationCompleted(&types.EventVerificationCompleted{
		Request:     id,
		Product:     r.ProductID,
		Verifier:    v.Address,
		Result:      result,
		EvidenceURI: evidenceURI,
	}))
	return k.notifyReputation(ctx, r)
}

func (k *Keeper) notifyReputation(ctx *types.Context, r *Request) error {
	retailer, err := k.reputation.IsRegistered(ctx, r.Requester)
	if err != nil || !retailer {
		return err
	}
	_, err = k.reputation.ProcessVerificationResult(ctx, types.VerificationAddress, reputation.Result{
		Verification: r.ID,
		Product:      r.ProductID,
		Retailer:     r.Requester,
		Success:      r.Result,
	})
	return err
}

// HandleTimeout slashes the assigned verifier of an expired request and
// refunds the requester's fee. Anyone may call it.
func (k *Keeper) HandleTimeout(ctx *types.Context, id common.Hash) (uint64, error) {
	r, err := k.GetRequest(ctx, id)
	if err != nil {
		return 0, err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	switch {
	case r.Completed:
		return 0, ErrAlreadyCompleted
	case r.TimedOut:
		return 0, ErrTimedOut
	case !r.Assigned():
		return 0, ErrNotAssigned
	case !r.IsExpired(p.TimeoutSec, ctx.Now()):
		return 0, fmt.Errorf("%w: assigned at %d, timeout %ds", ErrTimeoutNotReached, r.AssignedAt, p.TimeoutSec)
	}

	r.TimedOut = true
	if err = k.setRequest(ctx, r); err != nil {
		return 0, err
	}
	v, _, err := k.GetVerifier(ctx, r.AssignedVerifier)
	if err != nil {
		return 0, err
	}
	var reserve uint64
	if v.OpenAssignments > 0 {
		reserve = v.OpenAssignments - 1
	}
	amount := SlashAmount(p, v.StakedAmount, reserve)
	if amount == 0 {
		return 0, fmt.Errorf("%w: stake %d, open %d", ErrStakeExhausted, v.StakedAmount, v.OpenAssignments)
	}
	v.StakedAmount -= amount
	v.Slashed += amount
	if v.OpenAssignments > 0 {
		v.OpenAssignments -= 1
	}
	if v.StakedAmount == 0 && v.IsActive {
		v.IsActive = false
		if err = k.access.Revoke(ctx, access.CapVerifier, v.Address); err != nil {
			return 0, err
		}
	}
	if err = k.setVerifier(ctx, v); err != nil {
		return 0, err
	}
	if err = ledger.Pay(ctx, k.ledger, types.TreasuryAddress, amount); err != nil {
		return 0, err
	}
	if err = ledger.Pay(ctx, k.ledger, r.Requester, r.Fee); err != nil {
		return 0, err
	}
	k.logger.Info("verifier slashed", "verifier", v.Address.Hex(), "request", id.Hex(), "amount", amount)
	ctx.EmitEvent(types.EncodeEventVerifierSlashed(&types.EventVerifierSlashed{
		Request:   id,
		Verifier:  v.Address,
		Amount:    amount,
		Remaining: v.StakedAmount,
	}))
	return amount, nil
}

func (k *Keeper) updateParams(ctx *types.Context, key, value string, mutate func(*Params)) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	mutate(&p)
	if err = k.SetParams(ctx, p); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventParamsChanged(&types.EventParamsChanged{Module: "verification", Key: key, Value: value}))
	return nil
}

func (k *Keeper) SetFeeBounds(ctx *types.Context, minFee, maxFee uint64) error {
	return k.updateParams(ctx, "feeBounds", fmt.Sprintf("%d-%d", minFee, maxFee), func(p *Params) {
		p.MinFee = minFee
		p.MaxFee = maxFee
	})
}

func (k *Keeper) SetMinStake(ctx *types.Context, minStake uint64) error {
	return k.updateParams(ctx, "minStake", strconv.FormatUint(minStake, 10), func(p *Params) {
		p.MinStake = minStake
	})
}

func (k *Keeper) SetTimeout(ctx *types.Context, seconds int64) error {
	return k.updateParams(ctx, "timeoutSec", strconv.FormatInt(seconds, 10), func(p *Params) {
		p.TimeoutSec = seconds
	})
}
