package negotiation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contract-hub/contract-hub/internal/query"
)

func fieldFixture(t *testing.T) *Negotiation {
	t.Helper()
	n := newTestNegotiation(t, TypeInitiator)
	n.CorrelationID = "corr-1"
	offer1, _ := NewContractOffer("offer-1", "asset-1", json.RawMessage(`{}`))
	offer2, _ := NewContractOffer("offer-2", "asset-2", json.RawMessage(`{}`))
	n.AddContractOffer(offer1)
	n.AddContractOffer(offer2)
	cb, _ := NewCallbackAddress("https://cb.example", []string{"accepted", "finalized"}, true, "", "")
	n.CallbackAddresses = []CallbackAddress{cb}
	n.TraceContext = map[string]string{"traceparent": "00-abc"}
	a, _ := NewAgreement("agr-1", "provider-1", "consumer-1", "asset-1", testNow, json.RawMessage(`{}`))
	require.NoError(t, n.SetAgreement(a))
	return n
}

func TestIsNegotiationPath(t *testing.T) {
	known := []string{
		"id", "correlationId", "state", "stateTimestamp", "pending",
		"contractAgreement.assetId", "contractOffers.assetId",
		"callbackAddresses.events", "traceContext.traceparent",
	}
	for _, p := range known {
		assert.True(t, IsNegotiationPath(p), p)
	}

	unknown := []string{
		"", "nope", "contractAgreement.policy", "contractOffers.policy",
		"traceContext.", "contractAgreement.nope",
	}
	for _, p := range unknown {
		assert.False(t, IsNegotiationPath(p), p)
	}
}

func TestIsNegotiationSortPath(t *testing.T) {
	assert.True(t, IsNegotiationSortPath("stateTimestamp"))
	assert.False(t, IsNegotiationSortPath("contractOffers.assetId"))
}

func TestNegotiationFieldValues(t *testing.T) {
	n := fieldFixture(t)

	tests := []struct {
		path     string
		expected []any
	}{
		{path: "id", expected: []any{n.ID}},
		{path: "correlationId", expected: []any{"corr-1"}},
		{path: "type", expected: []any{"INITIATOR"}},
		{path: "state", expected: []any{int64(50)}},
		{path: "stateCount", expected: []any{int64(1)}},
		{path: "pending", expected: []any{false}},
		{path: "contractAgreement.id", expected: []any{"agr-1"}},
		{path: "contractAgreement.signingDate", expected: []any{testNow}},
		{path: "contractOffers.id", expected: []any{"offer-1", "offer-2"}},
		{path: "contractOffers.assetId", expected: []any{"asset-1", "asset-2"}},
		{path: "callbackAddresses.uri", expected: []any{"https://cb.example"}},
		{path: "callbackAddresses.events", expected: []any{"accepted", "finalized"}},
		{path: "callbackAddresses.transactional", expected: []any{true}},
		{path: "traceContext.traceparent", expected: []any{"00-abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, NegotiationFieldValues(n, tt.path))
		})
	}
}

func TestNegotiationFieldValues_StructuralMismatch(t *testing.T) {
	n := newTestNegotiation(t, TypeInitiator)

	assert.Empty(t, NegotiationFieldValues(n, "contractAgreement.id"))
	assert.Empty(t, NegotiationFieldValues(n, "contractOffers.assetId"))
	assert.Empty(t, NegotiationFieldValues(n, "traceContext.missing"))
	assert.Empty(t, NegotiationFieldValues(n, "unknown.path"))
}

func TestAgreementFieldValues(t *testing.T) {
	a, _ := NewAgreement("agr-1", "provider-1", "consumer-1", "asset-1", testNow, json.RawMessage(`{}`))

	assert.Equal(t, []any{"agr-1"}, AgreementFieldValues(a, "id"))
	assert.Equal(t, []any{"provider-1"}, AgreementFieldValues(a, "providerId"))
	assert.Equal(t, []any{"consumer-1"}, AgreementFieldValues(a, "consumerId"))
	assert.Equal(t, []any{"asset-1"}, AgreementFieldValues(a, "assetId"))
	assert.Equal(t, []any{testNow}, AgreementFieldValues(a, "signingDate"))
	assert.Nil(t, AgreementFieldValues(a, "policy"))
}

func TestLease(t *testing.T) {
	l := Lease{EntityID: "n1", HolderID: "worker-1", LeasedAt: 1000, LeaseDuration: 500}

	assert.Equal(t, int64(1500), l.ExpiresAt())
	assert.False(t, l.IsExpired(1499))
	assert.True(t, l.IsExpired(1500))
	assert.True(t, l.IsExpired(2000))
}

func TestValidateNegotiationQuery(t *testing.T) {
	valid := query.Spec{
		Filter:    []query.Criterion{query.NewCriterion("state", query.OpEqual, StateRequesting.Code())},
		SortField: "stateTimestamp",
		SortOrder: query.SortAsc,
		Limit:     10,
	}
	require.NoError(t, ValidateNegotiationQuery(valid))

	t.Run("unknown filter path", func(t *testing.T) {
		s := query.New(query.NewCriterion("contractOffers.policy", query.OpEqual, "x"))
		err := ValidateNegotiationQuery(s)
		require.ErrorIs(t, err, query.ErrInvalidQuery)
	})

	t.Run("nested sort field rejected", func(t *testing.T) {
		s := query.Spec{SortField: "contractAgreement.assetId", Limit: 10}
		err := ValidateNegotiationQuery(s)
		require.ErrorIs(t, err, query.ErrInvalidQuery)
		assert.Contains(t, err.Error(), "sorting")
	})
}

func TestValidateAgreementQuery(t *testing.T) {
	require.NoError(t, ValidateAgreementQuery(query.New(query.NewCriterion("assetId", query.OpEqual, "asset-1"))))

	err := ValidateAgreementQuery(query.New(query.NewCriterion("policy", query.OpEqual, "x")))
	require.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestValidateNegotiationCriteria(t *testing.T) {
	require.NoError(t, ValidateNegotiationCriteria(
		query.NewCriterion("state", query.OpEqual, StateRequesting.Code()),
		query.NewCriterion("pending", query.OpEqual, false),
	))

	err := ValidateNegotiationCriteria(query.NewCriterion("nope", query.OpEqual, 1))
	require.ErrorIs(t, err, query.ErrInvalidQuery)
}
