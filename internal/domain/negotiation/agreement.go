package negotiation

import (
	"encoding/json"
	"fmt"
)

// Agreement is the contract reached by a successful negotiation. It is
// stored in its own projection and queryable independently of the owning
// negotiation. The policy is an opaque serialized document.
type Agreement struct {
	ID          string          `json:"id"`
	ProviderID  string          `json:"providerId"`
	ConsumerID  string          `json:"consumerId"`
	AssetID     string          `json:"assetId"`
	SigningDate int64           `json:"signingDate"`
	Policy      json.RawMessage `json:"policy"`
}

func NewAgreement(id, providerID, consumerID, assetID string, signingDate int64, policy json.RawMessage) (*Agreement, error) {
	if id == "" {
		return nil, fmt.Errorf("agreement requires an id")
	}
	if providerID == "" {
		return nil, fmt.Errorf("agreement %s requires a provider id", id)
	}
	if consumerID == "" {
		return nil, fmt.Errorf("agreement %s requires a consumer id", id)
	}
	if assetID == "" {
		return nil, fmt.Errorf("agreement %s requires an asset id", id)
	}
	if len(policy) == 0 {
		return nil, fmt.Errorf("agreement %s requires a policy", id)
	}
	return &Agreement{
		ID:          id,
		ProviderID:  providerID,
		ConsumerID:  consumerID,
		AssetID:     assetID,
		SigningDate: signingDate,
		Policy:      policy,
	}, nil
}

func (a *Agreement) Copy() *Agreement {
	if a == nil {
		return nil
	}
	out := *a
	out.Policy = append(json.RawMessage(nil), a.Policy...)
	return &out
}
