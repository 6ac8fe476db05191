package types

import (
	"fmt"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventTransferType              = "transfer"
	EventApprovalType              = "approval"
	EventProductRegisteredType     = "product_registered"
	EventProductVerifiedType       = "product_verified"
	EventCapabilityType            = "capability"
	EventVerifierRegisteredType    = "verifier_registered"
	EventStakeWithdrawnType        = "stake_withdrawn"
	EventVerificationRequestedType = "verification_requested"
	EventVerifierAssignedType      = "verifier_assigned"
	EventVerificationCompletedType = "verification_completed"
	EventVerifierSlashedType       = "verifier_slashed"
	EventParamsChangedType         = "params_changed"
	EventRevenueDistributedType    = "revenue_distributed"
	EventSourceType                = "oracle_source"
	EventAttestationReceivedType   = "attestation_received"
	EventAttestationsFinalizedType = "attestations_finalized"
	EventRetailerRegisteredType    = "retailer_registered"
	EventRetailerAuthorizationType = "retailer_authorization"
	EventReputationUpdatedType     = "reputation_updated"
	EventReputationSkippedType     = "reputation_skipped"
	EventDisputeCreatedType        = "dispute_created"
	EventDisputeVotedType          = "dispute_voted"
	EventDisputeResolvedType       = "dispute_resolved"
)

func attr(key string, value any, index bool) abci.EventAttribute {
	var v string
	switch x := value.(type) {
	case string:
		v = x
	case common.Address:
		v = x.Hex()
	case common.Hash:
		v = x.Hex()
	default:
		v = fmt.Sprintf("%v", x)
	}
	return abci.EventAttribute{Key: key, Value: v, Index: index}
}

// Attributes flattens an event into a key/value map.
func Attributes(ev abci.Event) map[string]string {
	m := make(map[string]string, len(ev.Attributes))
	for _, a := range ev.Attributes {
		m[a.Key] = a.Value
	}
	return m
}

type EventTransfer struct {
	From   common.Address
	To     common.Address
	Amount uint64
}

func EncodeEventTransfer(event *EventTransfer) abci.Event {
	return abci.Event{
		Type: EventTransferType,
		Attributes: []abci.EventAttribute{
			attr("from", event.From, true),
			attr("to", event.To, true),
			attr("amount", event.Amount, false),
		},
	}
}

type EventApproval struct {
	Owner   common.Address
	Spender common.Address
	Amount  uint64
}

func EncodeEventApproval(event *EventApproval) abci.Event {
	return abci.Event{
		Type: EventApprovalType,
		Attributes: []abci.EventAttribute{
			attr("owner", event.Owner, true),
			attr("spender", event.Spender, true),
			attr("amount", event.Amount, false),
		},
	}
}

type EventProduct struct {
	Product  common.Hash
	Brand    common.Address
	Evidence common.Hash
	Count    uint64
}

func EncodeEventProductRegistered(event *EventProduct) abci.Event {
	return abci.Event{
		Type: EventProductRegisteredType,
		Attributes: []abci.EventAttribute{
			attr("product", event.Product, true),
			attr("brand", event.Brand, true),
		},
	}
}

func EncodeEventProductVerified(event *EventProduct) abci.Event {
	return abci.Event{
		Type: EventProductVerifiedType,
		Attributes: []abci.EventAttribute{
			attr("product", event.Product, true),
			attr("evidence", event.Evidence, false),
			attr("count", event.Count, false),
		},
	}
}

type EventCapability struct {
	Capability string
	Identity   common.Address
	Granted    bool
}

func EncodeEventCapability(event *EventCapability) abci.Event {
	return abci.Event{
		Type: EventCapabilityType,
		Attributes: []abci.EventAttribute{
			attr("capability", event.Capability, true),
			attr("identity", event.Identity, true),
			attr("granted", event.Granted, false),
		},
	}
}

type EventVerifierRegistered struct {
	Verifier common.Address
	Stake    uint64
}

func EncodeEventVerifierRegistered(event *EventVerifierRegistered) abci.Event {
	return abci.Event{
		Type: EventVerifierRegisteredType,
		Attributes: []abci.EventAttribute{
			attr("verifier", event.Verifier, true),
			attr("stake", event.Stake, false),
		},
	}
}

type EventStakeWithdrawn struct {
	Verifier common.Address
	Amount   uint64
}

func EncodeEventStakeWithdrawn(event *EventStakeWithdrawn) abci.Event {
	return abci.Event{
		Type: EventStakeWithdrawnType,
		Attributes: []abci.EventAttribute{
			attr("verifier", event.Verifier, true),
			attr("amount", event.Amount, false),
		},
	}
}

type EventVerificationRequested struct {
	Request      common.Hash
	Product      common.Hash
	Requester    common.Address
	ProductValue uint64
	Fee          uint64
}

func EncodeEventVerificationRequested(event *EventVerificationRequested) abci.Event {
	return abci.Event{
		Type: EventVerificationRequestedType,
		Attributes: []abci.EventAttribute{
			attr("request", event.Request, true),
			attr("product", event.Product, true),
			attr("requester", event.Requester, true),
			attr("value", event.ProductValue, false),
			attr("fee", event.Fee, false),
		},
	}
}

func DecodeEventVerificationRequested(originEvent abci.Event) *EventVerificationRequested {
	m := Attributes(originEvent)
	value, err := strconv.ParseUint(m["value"], 10, 64)
	if err != nil {
		return nil
	}
	fee, err := strconv.ParseUint(m["fee"], 10, 64)
	if err != nil {
		return nil
	}
	return &EventVerificationRequested{
		Request:      common.HexToHash(m["request"]),
		Product:      common.HexToHash(m["product"]),
		Requester:    common.HexToAddress(m["requester"]),
		ProductValue: value,
		Fee:          fee,
	}
}

type EventVerifierAssigned struct {
	Request  common.Hash
	Verifier common.Address
}

func EncodeEventVerifierAssigned(event *EventVerifierAssigned) abci.Event {
	return abci.Event{
		Type: EventVerifierAssignedType,
		Attributes: []abci.EventAttribute{
			attr("request", event.Request, true),
			attr("verifier", event.Verifier, true),
		},
	}
}

func DecodeEventVerifierAssigned(originEvent abci.Event) *EventVerifierAssigned {
	m := Attributes(originEvent)
	if m["request"] == "" {
		return nil
	}
	return &EventVerifierAssigned{
		Request:  common.HexToHash(m["request"]),
		Verifier: common.HexToAddress(m["verifier"]),
	}
}

type EventVerificationCompleted struct {
	Request     common.Hash
	Product     common.Hash
	Verifier    common.Address
	Result      bool
	EvidenceURI string
}

func EncodeEventVerificationCompleted(event *EventVerificationCompleted) abci.Event {
	return abci.Event{
		Type: EventVerificationCompletedType,
		Attributes: []abci.EventAttribute{
			attr("request", event.Request, true),
			attr("product", event.Product, true),
			attr("verifier", event.Verifier, true),
			attr("result", event.Result, false),
			attr("evidence", event.EvidenceURI, false),
		},
	}
}

func DecodeEventVerificationCompleted(originEvent abci.Event) *EventVerificationCompleted {
	m := Attributes(originEvent)
	result, err := strconv.ParseBool(m["result"])
	if err != nil {
		return nil
	}
	return &EventVerificationCompleted{
		Request:     common.HexToHash(m["request"]),
		Product:     common.HexToHash(m["product"]),
		Verifier:    common.HexToAddress(m["verifier"]),
		Result:      result,
		EvidenceURI: m["evidence"],
	}
}

type EventVerifierSlashed struct {
	Request   common.Hash
	Verifier  common.Address
	Amount    uint64
	Remaining uint64
}

func EncodeEventVerifierSlashed(event *EventVerifierSlashed) abci.Event {
	return abci.Event{
		Type: EventVerifierSlashedType,
		Attributes: []abci.EventAttribute{
			attr("request", event.Request, true),
			attr("verifier", event.Verifier, true),
			attr("amount", event.Amount, false),
			attr("remaining", event.Remaining, false),
		},
	}
}

func DecodeEventVerifierSlashed(originEvent abci.Event) *EventVerifierSlashed {
	m := Attributes(originEvent)
	amount, err := strconv.ParseUint(m["amount"], 10, 64)
	if err != nil {
		return nil
	}
	remaining, err := strconv.ParseUint(m["remaining"], 10, 64)
	if err != nil {
		return nil
	}
	return &EventVerifierSlashed{
		Request:   common.HexToHash(m["request"]),
		Verifier:  common.HexToAddress(m["verifier"]),
		Amount:    amount,
		Remaining: remaining,
	}
}

type EventParamsChanged struct {
	Module string
	Key    string
	Value  string
}

func EncodeEventParamsChanged(event *EventParamsChanged) abci.Event {
	return abci.Event{
		Type: EventParamsChangedType,
		Attributes: []abci.EventAttribute{
			attr("module", event.Module, true),
			attr("key", event.Key, false),
			attr("value", event.Value, false),
		},
	}
}

type EventRevenueDistributed struct {
	Verifier       common.Address
	Brand          common.Address
	VerifierAmount uint64
	BrandAmount    uint64
	TreasuryAmount uint64
}

func EncodeEventRevenueDistributed(event *EventRevenueDistributed) abci.Event {
	return abci.Event{
		Type: EventRevenueDistributedType,
		Attributes: []abci.EventAttribute{
			attr("verifier", event.Verifier, true),
			attr("brand", event.Brand, true),
			attr("verifierAmount", event.VerifierAmount, false),
			attr("brandAmount", event.BrandAmount, false),
			attr("treasuryAmount", event.TreasuryAmount, false),
		},
	}
}

type EventSource struct {
	Source common.Address
	Action string
	Kind   string
	Weight uint64
	Active bool
}

func EncodeEventSource(event *EventSource) abci.Event {
	return abci.Event{
		Type: EventSourceType,
		Attributes: []abci.EventAttribute{
			attr("source", event.Source, true),
			attr("action", event.Action, false),
			attr("kind", event.Kind, false),
			attr("weight", event.Weight, false),
			attr("active", event.Active, false),
		},
	}
}

type EventAttestationReceived struct {
	Request common.Hash
	Product common.Hash
	Source  common.Address
	Verdict bool
	Weight  uint64
	Nonce   uint64
	Trusted bool
}

func EncodeEventAttestationReceived(event *EventAttestationReceived) abci.Event {
	return abci.Event{
		Type: EventAttestationReceivedType,
		Attributes: []abci.EventAttribute{
			attr("request", event.Request, true),
			attr("product", event.Product, true),
			attr("source", event.Source, true),
			attr("verdict", event.Verdict, false),
			attr("weight", event.Weight, false),
			attr("nonce", event.Nonce, false),
			attr("trusted", event.Trusted, false),
		},
	}
}

type EventAttestationsFinalized struct {
	Request       common.Hash
	QuorumReached bool
	Passed        bool
	TotalWeight   uint64
	PassWeight    uint64
	Count         uint64
}

func EncodeEventAttestationsFinalized(event *EventAttestationsFinalized) abci.Event {
	return abci.Event{
		Type: EventAttestationsFinalizedType,
		Attributes: []abci.EventAttribute{
			attr("request", event.Request, true),
			attr("quorum", event.QuorumReached, false),
			attr("passed", event.Passed, false),
			attr("totalWeight", event.TotalWeight, false),
			attr("passWeight", event.PassWeight, false),
			attr("count", event.Count, false),
		},
	}
}

type EventRetailerRegistered struct {
	Retailer common.Address
	Name     string
}

func EncodeEventRetailerRegistered(event *EventRetailerRegistered) abci.Event {
	return abci.Event{
		Type: EventRetailerRegisteredType,
		Attributes: []abci.EventAttribute{
			attr("retailer", event.Retailer, true),
			attr("name", event.Name, false),
		},
	}
}

func DecodeEventRetailerRegistered(originEvent abci.Event) *EventRetailerRegistered {
	m := Attributes(originEvent)
	if m["retailer"] == "" {
		return nil
	}
	return &EventRetailerRegistered{
		Retailer: common.HexToAddress(m["retailer"]),
		Name:     m["name"],
	}
}

type EventRetailerAuthorization struct {
	Brand      common.Address
	Retailer   common.Address
	Authorized bool
}

func EncodeEventRetailerAuthorization(event *EventRetailerAuthorization) abci.Event {
	return abci.Event{
		Type: EventRetailerAuthorizationType,
		Attributes: []abci.EventAttribute{
			attr("brand", event.Brand, true),
			attr("retailer", event.Retailer, true),
			attr("authorized", event.Authorized, false),
		},
	}
}

type EventReputation struct {
	Retailer     common.Address
	Verification common.Hash
	Score        uint64
	Reason       string
}

func EncodeEventReputationUpdated(event *EventReputation) abci.Event {
	return abci.Event{
		Type: EventReputationUpdatedType,
		Attributes: []abci.EventAttribute{
			attr("retailer", event.Retailer, true),
			attr("verification", event.Verification, true),
			attr("score", event.Score, false),
			attr("reason", event.Reason, false),
		},
	}
}

func EncodeEventReputationSkipped(event *EventReputation) abci.Event {
	ev := EncodeEventReputationUpdated(event)
	ev.Type = EventReputationSkippedType
	return ev
}

func DecodeEventReputation(originEvent abci.Event) *EventReputation {
	m := Attributes(originEvent)
	score, err := strconv.ParseUint(m["score"], 10, 64)
	if err != nil {
		return nil
	}
	return &EventReputation{
		Retailer:     common.HexToAddress(m["retailer"]),
		Verification: common.HexToHash(m["verification"]),
		Score:        score,
		Reason:       m["reason"],
	}
}

type EventDisputeCreated struct {
	Dispute   uint64
	Request   common.Hash
	Product   common.Hash
	Initiator common.Address
	Deadline  int64
}

func EncodeEventDisputeCreated(event *EventDisputeCreated) abci.Event {
	return abci.Event{
		Type: EventDisputeCreatedType,
		Attributes: []abci.EventAttribute{
			attr("dispute", event.Dispute, true),
			attr("request", event.Request, true),
			attr("product", event.Product, false),
			attr("initiator", event.Initiator, true),
			attr("deadline", event.Deadline, false),
		},
	}
}

func DecodeEventDisputeCreated(originEvent abci.Event) *EventDisputeCreated {
	m := Attributes(originEvent)
	dispute, err := strconv.ParseUint(m["dispute"], 10, 64)
	if err != nil {
		return nil
	}
	deadline, err := strconv.ParseInt(m["deadline"], 10, 64)
	if err != nil {
		return nil
	}
	return &EventDisputeCreated{
		Dispute:   dispute,
		Request:   common.HexToHash(m["request"]),
		Product:   common.HexToHash(m["product"]),
		Initiator: common.HexToAddress(m["initiator"]),
		Deadline:  deadline,
	}
}

type EventDisputeVoted struct {
	Dispute      uint64
	Voter        common.Address
	InFavor      bool
	VotesFor     uint64
	VotesAgainst uint64
}

func EncodeEventDisputeVoted(event *EventDisputeVoted) abci.Event {
	return abci.Event{
		Type: EventDisputeVotedType,
		Attributes: []abci.EventAttribute{
			attr("dispute", event.Dispute, true),
			attr("voter", event.Voter, true),
			attr("inFavor", event.InFavor, false),
			attr("votesFor", event.VotesFor, false),
			attr("votesAgainst", event.VotesAgainst, false),
		},
	}
}

func DecodeEventDisputeVoted(originEvent abci.Event) *EventDisputeVoted {
	m := Attributes(originEvent)
	dispute, err := strconv.ParseUint(m["dispute"], 10, 64)
	if err != nil {
		return nil
	}
	inFavor, err := strconv.ParseBool(m["inFavor"])
	if err != nil {
		return nil
	}
	votesFor, err := strconv.ParseUint(m["votesFor"], 10, 64)
	if err != nil {
		return nil
	}
	votesAgainst, err := strconv.ParseUint(m["votesAgainst"], 10, 64)
	if err != nil {
		return nil
	}
	return &EventDisputeVoted{
		Dispute:      dispute,
		Voter:        common.HexToAddress(m["voter"]),
		InFavor:      inFavor,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
	}
}

type EventDisputeResolved struct {
	Dispute uint64
	Status  string
	InFavor bool
}

func EncodeEventDisputeResolved(event *EventDisputeResolved) abci.Event {
	return abci.Event{
		Type: EventDisputeResolvedType,
		Attributes: []abci.EventAttribute{
			attr("dispute", event.Dispute, true),
			attr("status", event.Status, false),
			attr("inFavor", event.InFavor, false),
		},
	}
}

func DecodeEventDisputeResolved(originEvent abci.Event) *EventDisputeResolved {
	m := Attributes(originEvent)
	dispute, err := strconv.ParseUint(m["dispute"], 10, 64)
	if err != nil {
		return nil
	}
	inFavor, err := strconv.ParseBool(m["inFavor"])
	if err != nil {
		return nil
	}
	return &EventDisputeResolved{
		Dispute: dispute,
		Status:  m["status"],
		InFavor: inFavor,
	}
}
