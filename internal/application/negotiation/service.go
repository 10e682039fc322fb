package negotiation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/query"
)

// Service exposes the management view of the negotiation store: lookups,
// spec-driven queries, and administrative deletion. Protocol-driven state
// changes never go through here; they belong to the worker loop.
type Service struct {
	store  negotiation.Store
	logger zerolog.Logger
}

// NewService creates a negotiation management service.
func NewService(store negotiation.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("service", "negotiation").Logger(),
	}
}

// Get returns the negotiation by id.
func (s *Service) Get(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	return s.store.FindByID(ctx, id)
}

// GetState returns the current state of a negotiation.
func (s *Service) GetState(ctx context.Context, id string) (negotiation.State, error) {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return n.State, nil
}

// Query runs a spec against the negotiation projection. State filters may
// name states symbolically; they are rewritten to their numeric codes
// before reaching the store.
func (s *Service) Query(ctx context.Context, spec query.Spec) ([]*negotiation.Negotiation, error) {
	spec, err := rewriteStateFilters(spec)
	if err != nil {
		return nil, err
	}
	return s.store.QueryNegotiations(ctx, spec)
}

// Delete removes a negotiation for administrative cleanup.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("negotiation_id", id).Msg("negotiation deleted")
	return nil
}

// GetAgreement returns the agreement by id.
func (s *Service) GetAgreement(ctx context.Context, agreementID string) (*negotiation.Agreement, error) {
	return s.store.FindAgreement(ctx, agreementID)
}

// QueryAgreements runs a spec against the agreement projection.
func (s *Service) QueryAgreements(ctx context.Context, spec query.Spec) ([]*negotiation.Agreement, error) {
	return s.store.QueryAgreements(ctx, spec)
}

// rewriteStateFilters maps symbolic state names in "state" criteria onto
// the stable numeric codes the stores index. Numeric operands pass through
// untouched.
func rewriteStateFilters(spec query.Spec) (query.Spec, error) {
	if len(spec.Filter) == 0 {
		return spec, nil
	}
	rewritten := make([]query.Criterion, len(spec.Filter))
	copy(rewritten, spec.Filter)
	for i, c := range rewritten {
		if c.OperandLeft != "state" {
			continue
		}
		switch v := c.OperandRight.(type) {
		case string:
			st, err := negotiation.StateFromName(v)
			if err != nil {
				return query.Spec{}, fmt.Errorf("%w: %v", query.ErrInvalidQuery, err)
			}
			rewritten[i].OperandRight = st.Code()
		case []any:
			members := make([]any, len(v))
			copy(members, v)
			for j, m := range members {
				name, ok := m.(string)
				if !ok {
					continue
				}
				st, err := negotiation.StateFromName(name)
				if err != nil {
					return query.Spec{}, fmt.Errorf("%w: %v", query.ErrInvalidQuery, err)
				}
				members[j] = st.Code()
			}
			rewritten[i].OperandRight = members
		}
	}
	spec.Filter = rewritten
	return spec, nil
}
