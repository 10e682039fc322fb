package postgres

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contract-hub/contract-hub/internal/query"
)

// assertStatement snapshots the compiled SQL together with its bind
// parameters, so a golden diff shows exactly what would hit the database.
func assertStatement(t *testing.T, name, sql string, args []any) {
	t.Helper()
	var b strings.Builder
	b.WriteString(sql)
	b.WriteString("\n\n-- args --\n")
	for i, a := range args {
		fmt.Fprintf(&b, "$%d = %#v\n", i+1, a)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(b.String()))
}

func TestQueryNegotiationsSQL(t *testing.T) {
	s := NewStatements()

	t.Run("default page", func(t *testing.T) {
		sql, args, err := s.QueryNegotiations(query.None())
		require.NoError(t, err)
		assertStatement(t, "negotiations_default", sql, args)
	})

	t.Run("filtered and sorted", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{
				query.NewCriterion("state", query.OpIn, []any{200, 400}),
				query.NewCriterion("type", query.OpEqual, "INITIATOR"),
			},
			SortField: "stateTimestamp",
			SortOrder: query.SortDesc,
			Offset:    20,
			Limit:     10,
		}
		sql, args, err := s.QueryNegotiations(spec)
		require.NoError(t, err)
		assertStatement(t, "negotiations_filtered", sql, args)
	})

	t.Run("nested paths", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{
				query.NewCriterion("contractOffers.assetId", query.OpEqual, "asset-1"),
				query.NewCriterion("callbackAddresses.events", query.OpEqual, "contract.negotiation.accepted"),
				query.NewCriterion("traceContext.traceparent", query.OpLike, "00-%"),
				query.NewCriterion("contractAgreement.assetId", query.OpEqual, "asset-1"),
			},
			Limit: 50,
		}
		sql, args, err := s.QueryNegotiations(spec)
		require.NoError(t, err)
		assertStatement(t, "negotiations_nested", sql, args)
	})

	t.Run("negated repeated path", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{
				query.NewCriterion("contractOffers.id", query.OpNotEqual, "offer-9"),
			},
			Limit: 50,
		}
		sql, args, err := s.QueryNegotiations(spec)
		require.NoError(t, err)
		assertStatement(t, "negotiations_negated_offer", sql, args)
	})

	t.Run("sort by id has no duplicate tie break", func(t *testing.T) {
		sql, _, err := s.QueryNegotiations(query.Spec{SortField: "id", SortOrder: query.SortDesc, Limit: 10})
		require.NoError(t, err)
		assert.Contains(t, sql, "ORDER BY n.id DESC\n")
		assert.NotContains(t, sql, "n.id DESC, n.id")
	})

	t.Run("empty in list matches nothing", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{query.NewCriterion("state", query.OpIn, []any{})},
			Limit:  5,
		}
		sql, args, err := s.QueryNegotiations(spec)
		require.NoError(t, err)
		assert.Contains(t, sql, "WHERE FALSE")
		assert.Equal(t, []any{5, 0}, args)
	})

	t.Run("rejects unknown operator", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{query.NewCriterion("state", ">", 100)},
			Limit:  10,
		}
		_, _, err := s.QueryNegotiations(spec)
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})

	t.Run("rejects scalar operand for in", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{query.NewCriterion("state", query.OpIn, 200)},
			Limit:  10,
		}
		_, _, err := s.QueryNegotiations(spec)
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})

	t.Run("rejects nested sort field", func(t *testing.T) {
		_, _, err := s.QueryNegotiations(query.Spec{SortField: "contractOffers.id", Limit: 10})
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})
}

func TestNextNotLeasedSQL(t *testing.T) {
	s := NewStatements()

	sql, args, err := s.NextNotLeased(10, 1_700_000_000_000,
		query.NewCriterion("state", query.OpEqual, 200),
		query.NewCriterion("pending", query.OpEqual, false),
	)
	require.NoError(t, err)
	assertStatement(t, "next_not_leased", sql, args)
}

func TestQueryAgreementsSQL(t *testing.T) {
	s := NewStatements()

	t.Run("filtered and sorted", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{
				query.NewCriterion("assetId", query.OpEqual, "asset-1"),
				query.NewCriterion("providerId", query.OpIn, []any{"p1", "p2"}),
			},
			SortField: "signingDate",
			SortOrder: query.SortDesc,
			Offset:    5,
			Limit:     25,
		}
		sql, args, err := s.QueryAgreements(spec)
		require.NoError(t, err)
		assertStatement(t, "agreements_filtered", sql, args)
	})

	t.Run("rejects unknown path", func(t *testing.T) {
		spec := query.Spec{
			Filter: []query.Criterion{query.NewCriterion("policy", query.OpEqual, "{}")},
			Limit:  10,
		}
		_, _, err := s.QueryAgreements(spec)
		assert.ErrorIs(t, err, query.ErrInvalidQuery)
	})
}
