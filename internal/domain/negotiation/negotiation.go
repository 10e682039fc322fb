package negotiation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Type marks which side of the protocol this connector plays for a
// negotiation.
type Type string

const (
	TypeInitiator Type = "INITIATOR"
	TypeResponder Type = "RESPONDER"
)

func (t Type) Valid() bool {
	return t == TypeInitiator || t == TypeResponder
}

// ContractOffer is one offer exchanged during a negotiation. The policy is
// an opaque serialized document; this core never interprets it.
type ContractOffer struct {
	ID      string          `json:"id"`
	AssetID string          `json:"assetId"`
	Policy  json.RawMessage `json:"policy"`
}

func NewContractOffer(id, assetID string, policy json.RawMessage) (ContractOffer, error) {
	if id == "" {
		return ContractOffer{}, fmt.Errorf("contract offer requires an id")
	}
	if assetID == "" {
		return ContractOffer{}, fmt.Errorf("contract offer requires an asset id")
	}
	if len(policy) == 0 {
		return ContractOffer{}, fmt.Errorf("contract offer requires a policy")
	}
	return ContractOffer{ID: id, AssetID: assetID, Policy: policy}, nil
}

// CallbackAddress is an endpoint to notify when the negotiation reaches the
// events it subscribes to.
type CallbackAddress struct {
	URI           string   `json:"uri"`
	Events        []string `json:"events"`
	Transactional bool     `json:"transactional"`
	AuthKey       string   `json:"authKey,omitempty"`
	AuthCodeID    string   `json:"authCodeId,omitempty"`
}

func NewCallbackAddress(uri string, events []string, transactional bool, authKey, authCodeID string) (CallbackAddress, error) {
	if uri == "" {
		return CallbackAddress{}, fmt.Errorf("callback address requires a uri")
	}
	if len(events) == 0 {
		return CallbackAddress{}, fmt.Errorf("callback address requires at least one event")
	}
	return CallbackAddress{
		URI:           uri,
		Events:        events,
		Transactional: transactional,
		AuthKey:       authKey,
		AuthCodeID:    authCodeID,
	}, nil
}

// Negotiation tracks one contract-negotiation protocol run with a remote
// counterparty. It is mutated only by a lease-holding worker; the store
// persists it as an atomic whole.
type Negotiation struct {
	ID                  string            `json:"id"`
	CorrelationID       string            `json:"correlationId,omitempty"`
	CounterPartyID      string            `json:"counterPartyId"`
	CounterPartyAddress string            `json:"counterPartyAddress"`
	Protocol            string            `json:"protocol"`
	Type                Type              `json:"type"`
	State               State             `json:"state"`
	StateCount          int               `json:"stateCount"`
	StateTimestamp      int64             `json:"stateTimestamp"`
	Pending             bool              `json:"pending"`
	ErrorDetail         string            `json:"errorDetail,omitempty"`
	ContractOffers      []ContractOffer   `json:"contractOffers,omitempty"`
	CallbackAddresses   []CallbackAddress `json:"callbackAddresses,omitempty"`
	TraceContext        map[string]string `json:"traceContext,omitempty"`
	ContractAgreement   *Agreement        `json:"contractAgreement,omitempty"`
	CreatedAt           int64             `json:"createdAt"`
	UpdatedAt           int64             `json:"updatedAt"`
}

// New creates a negotiation in INITIAL state. The caller supplies the
// current time in epoch millis, normally from the injected clock.
func New(typ Type, counterPartyID, counterPartyAddress, protocol string, now int64) (*Negotiation, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("negotiation type must be %s or %s, got %q", TypeInitiator, TypeResponder, typ)
	}
	if counterPartyID == "" {
		return nil, fmt.Errorf("negotiation requires a counter party id")
	}
	if counterPartyAddress == "" {
		return nil, fmt.Errorf("negotiation requires a counter party address")
	}
	if protocol == "" {
		return nil, fmt.Errorf("negotiation requires a protocol")
	}
	return &Negotiation{
		ID:                  uuid.NewString(),
		CounterPartyID:      counterPartyID,
		CounterPartyAddress: counterPartyAddress,
		Protocol:            protocol,
		Type:                typ,
		State:               StateInitial,
		StateCount:          1,
		StateTimestamp:      now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// Validate checks the invariants a persisted negotiation must hold.
func (n *Negotiation) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("negotiation requires an id")
	}
	if !n.Type.Valid() {
		return fmt.Errorf("negotiation %s has invalid type %q", n.ID, n.Type)
	}
	if _, err := StateFromCode(n.State.Code()); err != nil {
		return fmt.Errorf("negotiation %s: %w", n.ID, err)
	}
	return nil
}

// TransitionTo moves the negotiation to the target state if legal for its
// type. Re-entering the current state counts as a retry and increments
// StateCount; moving to a new state resets it. A successful transition
// clears the last error detail.
func (n *Negotiation) TransitionTo(to State, now int64) error {
	if !CanTransition(n.Type, n.State, to) {
		return fmt.Errorf("%w: %s -> %s for type %s", ErrInvalidTransition, n.State, to, n.Type)
	}
	if to == n.State {
		n.StateCount++
	} else {
		n.StateCount = 1
	}
	n.State = to
	n.StateTimestamp = now
	n.UpdatedAt = now
	n.ErrorDetail = ""
	return nil
}

// SetAgreement attaches the agreement reached by this negotiation. Once an
// agreement is owned it cannot be swapped for a different one; re-setting
// the same agreement id replaces the stored copy.
func (n *Negotiation) SetAgreement(a *Agreement) error {
	if a == nil {
		return fmt.Errorf("agreement must not be nil")
	}
	if n.ContractAgreement != nil && n.ContractAgreement.ID != a.ID {
		return fmt.Errorf("%w: negotiation %s already owns agreement %s", ErrConflict, n.ID, n.ContractAgreement.ID)
	}
	n.ContractAgreement = a
	return nil
}

// AddContractOffer appends to the negotiation's ordered offer history.
func (n *Negotiation) AddContractOffer(offer ContractOffer) {
	n.ContractOffers = append(n.ContractOffers, offer)
}

// LastContractOffer returns the most recent offer, if any.
func (n *Negotiation) LastContractOffer() (ContractOffer, bool) {
	if len(n.ContractOffers) == 0 {
		return ContractOffer{}, false
	}
	return n.ContractOffers[len(n.ContractOffers)-1], true
}

func (n *Negotiation) SetErrorDetail(detail string) {
	n.ErrorDetail = detail
}

// SetPending marks whether an outbound message for the current state is in
// flight.
func (n *Negotiation) SetPending(pending bool) {
	n.Pending = pending
}

// Copy returns a deep copy, so stores can hand out snapshots without
// aliasing caller-held memory.
func (n *Negotiation) Copy() *Negotiation {
	if n == nil {
		return nil
	}
	out := *n
	if n.ContractOffers != nil {
		out.ContractOffers = make([]ContractOffer, len(n.ContractOffers))
		for i, o := range n.ContractOffers {
			out.ContractOffers[i] = o
			out.ContractOffers[i].Policy = append(json.RawMessage(nil), o.Policy...)
		}
	}
	if n.CallbackAddresses != nil {
		out.CallbackAddresses = make([]CallbackAddress, len(n.CallbackAddresses))
		for i, cb := range n.CallbackAddresses {
			out.CallbackAddresses[i] = cb
			out.CallbackAddresses[i].Events = append([]string(nil), cb.Events...)
		}
	}
	if n.TraceContext != nil {
		out.TraceContext = make(map[string]string, len(n.TraceContext))
		for k, v := range n.TraceContext {
			out.TraceContext[k] = v
		}
	}
	out.ContractAgreement = n.ContractAgreement.Copy()
	return &out
}
