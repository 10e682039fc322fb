package negotiation

import (
	"fmt"
	"strings"

	"github.com/contract-hub/contract-hub/internal/query"
)

// Queryable field paths. Filters address entity fields by dotted path;
// paths into repeated sub-structures resolve to one candidate value per
// element. Agreement policies are opaque and deliberately not addressable.

const traceContextPrefix = "traceContext."

var negotiationScalarPaths = map[string]bool{
	"id":                  true,
	"correlationId":       true,
	"counterPartyId":      true,
	"counterPartyAddress": true,
	"protocol":            true,
	"type":                true,
	"state":               true,
	"stateCount":          true,
	"stateTimestamp":      true,
	"pending":             true,
	"errorDetail":         true,
	"createdAt":           true,
	"updatedAt":           true,
}

var negotiationNestedPaths = map[string]bool{
	"contractAgreement.id":            true,
	"contractAgreement.providerId":    true,
	"contractAgreement.consumerId":    true,
	"contractAgreement.assetId":       true,
	"contractAgreement.signingDate":   true,
	"contractOffers.id":               true,
	"contractOffers.assetId":          true,
	"callbackAddresses.uri":           true,
	"callbackAddresses.events":        true,
	"callbackAddresses.transactional": true,
	"callbackAddresses.authKey":       true,
	"callbackAddresses.authCodeId":    true,
}

var agreementPaths = map[string]bool{
	"id":          true,
	"providerId":  true,
	"consumerId":  true,
	"assetId":     true,
	"signingDate": true,
}

// IsNegotiationPath reports whether path addresses a queryable negotiation
// field. Trace context keys are data-dependent, so any non-empty key under
// the traceContext prefix is accepted.
func IsNegotiationPath(path string) bool {
	if negotiationScalarPaths[path] || negotiationNestedPaths[path] {
		return true
	}
	return strings.HasPrefix(path, traceContextPrefix) && len(path) > len(traceContextPrefix)
}

// IsNegotiationSortPath reports whether path may be used as a sort field.
// Only scalar fields give a single orderable value per row.
func IsNegotiationSortPath(path string) bool {
	return negotiationScalarPaths[path]
}

func IsAgreementPath(path string) bool {
	return agreementPaths[path]
}

func IsAgreementSortPath(path string) bool {
	return agreementPaths[path]
}

// NegotiationFieldValues resolves path against n. Paths through repeated
// sub-structures yield one value per element; a missing agreement or trace
// key yields no candidates, which filters treat as a structural mismatch.
// Unknown paths also yield no candidates; they are rejected earlier by spec
// validation.
func NegotiationFieldValues(n *Negotiation, path string) []any {
	switch path {
	case "id":
		return []any{n.ID}
	case "correlationId":
		return []any{n.CorrelationID}
	case "counterPartyId":
		return []any{n.CounterPartyID}
	case "counterPartyAddress":
		return []any{n.CounterPartyAddress}
	case "protocol":
		return []any{n.Protocol}
	case "type":
		return []any{string(n.Type)}
	case "state":
		return []any{int64(n.State.Code())}
	case "stateCount":
		return []any{int64(n.StateCount)}
	case "stateTimestamp":
		return []any{n.StateTimestamp}
	case "pending":
		return []any{n.Pending}
	case "errorDetail":
		return []any{n.ErrorDetail}
	case "createdAt":
		return []any{n.CreatedAt}
	case "updatedAt":
		return []any{n.UpdatedAt}
	}

	if strings.HasPrefix(path, "contractAgreement.") {
		if n.ContractAgreement == nil {
			return nil
		}
		return AgreementFieldValues(n.ContractAgreement, strings.TrimPrefix(path, "contractAgreement."))
	}

	if strings.HasPrefix(path, "contractOffers.") {
		sub := strings.TrimPrefix(path, "contractOffers.")
		out := make([]any, 0, len(n.ContractOffers))
		for _, o := range n.ContractOffers {
			switch sub {
			case "id":
				out = append(out, o.ID)
			case "assetId":
				out = append(out, o.AssetID)
			}
		}
		return out
	}

	if strings.HasPrefix(path, "callbackAddresses.") {
		sub := strings.TrimPrefix(path, "callbackAddresses.")
		var out []any
		for _, cb := range n.CallbackAddresses {
			switch sub {
			case "uri":
				out = append(out, cb.URI)
			case "transactional":
				out = append(out, cb.Transactional)
			case "authKey":
				out = append(out, cb.AuthKey)
			case "authCodeId":
				out = append(out, cb.AuthCodeID)
			case "events":
				for _, ev := range cb.Events {
					out = append(out, ev)
				}
			}
		}
		return out
	}

	if strings.HasPrefix(path, traceContextPrefix) {
		key := strings.TrimPrefix(path, traceContextPrefix)
		if v, ok := n.TraceContext[key]; ok {
			return []any{v}
		}
		return nil
	}

	return nil
}

func AgreementFieldValues(a *Agreement, path string) []any {
	switch path {
	case "id":
		return []any{a.ID}
	case "providerId":
		return []any{a.ProviderID}
	case "consumerId":
		return []any{a.ConsumerID}
	case "assetId":
		return []any{a.AssetID}
	case "signingDate":
		return []any{a.SigningDate}
	default:
		return nil
	}
}

// ValidateNegotiationQuery checks a spec against the negotiation field
// paths. Sorting is limited to top-level scalar fields.
func ValidateNegotiationQuery(s query.Spec) error {
	if err := s.Validate(IsNegotiationPath); err != nil {
		return err
	}
	if s.SortField != "" && !IsNegotiationSortPath(s.SortField) {
		return fmt.Errorf("%w: field %q cannot be used for sorting", query.ErrInvalidQuery, s.SortField)
	}
	return nil
}

// ValidateAgreementQuery checks a spec against the agreement field paths.
func ValidateAgreementQuery(s query.Spec) error {
	if err := s.Validate(IsAgreementPath); err != nil {
		return err
	}
	if s.SortField != "" && !IsAgreementSortPath(s.SortField) {
		return fmt.Errorf("%w: field %q cannot be used for sorting", query.ErrInvalidQuery, s.SortField)
	}
	return nil
}

// ValidateNegotiationCriteria checks bare filter criteria, as used by
// the not-leased batch fetch.
func ValidateNegotiationCriteria(criteria ...query.Criterion) error {
	return query.Spec{Filter: criteria, Limit: query.DefaultLimit}.Validate(IsNegotiationPath)
}
