package postgres

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/contract-hub/contract-hub/internal/query"
)

// Statements builds the SQL used by the negotiation store. Every value is
// bound as a positional parameter, and compiled specs always carry a stable
// ORDER BY with an id tie-break so pagination never shuffles between calls.
type Statements struct{}

func NewStatements() *Statements {
	return &Statements{}
}

const selectNegotiationBase = `SELECT n.id, n.correlation_id, n.counterparty_id, n.counterparty_address, n.protocol,
	n.type, n.state, n.state_count, n.state_timestamp, n.pending, n.error_detail,
	n.contract_offers, n.callback_addresses, n.trace_context, n.created_at, n.updated_at,
	a.id, a.provider_id, a.consumer_id, a.asset_id, a.signing_date, a.policy
FROM contract_negotiations n
LEFT JOIN contract_agreements a ON a.id = n.agreement_id`

const selectAgreementBase = `SELECT a.id, a.provider_id, a.consumer_id, a.asset_id, a.signing_date, a.policy
FROM contract_agreements a`

// negotiationColumns maps scalar field paths onto their columns.
var negotiationColumns = map[string]string{
	"id":                  "n.id",
	"correlationId":       "n.correlation_id",
	"counterPartyId":      "n.counterparty_id",
	"counterPartyAddress": "n.counterparty_address",
	"protocol":            "n.protocol",
	"type":                "n.type",
	"state":               "n.state",
	"stateCount":          "n.state_count",
	"stateTimestamp":      "n.state_timestamp",
	"pending":             "n.pending",
	"errorDetail":         "n.error_detail",
	"createdAt":           "n.created_at",
	"updatedAt":           "n.updated_at",
}

// agreementJoinColumns maps negotiation paths into the joined agreement.
// Rows without an agreement compare as NULL and drop out of every operator,
// negation included.
var agreementJoinColumns = map[string]string{
	"contractAgreement.id":          "a.id",
	"contractAgreement.providerId":  "a.provider_id",
	"contractAgreement.consumerId":  "a.consumer_id",
	"contractAgreement.assetId":     "a.asset_id",
	"contractAgreement.signingDate": "a.signing_date",
}

var agreementColumns = map[string]string{
	"id":          "a.id",
	"providerId":  "a.provider_id",
	"consumerId":  "a.consumer_id",
	"assetId":     "a.asset_id",
	"signingDate": "a.signing_date",
}

// offerElementKeys and callbackElementKeys name the JSON keys addressed by
// paths into the repeated sub-structures.
var offerElementKeys = map[string]string{
	"contractOffers.id":      "id",
	"contractOffers.assetId": "assetId",
}

var callbackElementKeys = map[string]string{
	"callbackAddresses.uri":        "uri",
	"callbackAddresses.authKey":    "authKey",
	"callbackAddresses.authCodeId": "authCodeId",
}

// argList accumulates bind parameters in the order their placeholders are
// written into the statement.
type argList struct {
	args []any
}

func (l *argList) add(v any) string {
	l.args = append(l.args, v)
	return "$" + strconv.Itoa(len(l.args))
}

func (s *Statements) SelectNegotiationByID() string {
	return selectNegotiationBase + "\nWHERE n.id = $1"
}

func (s *Statements) SelectNegotiationsByCorrelationID() string {
	return selectNegotiationBase + "\nWHERE n.correlation_id = $1\nORDER BY n.id ASC"
}

func (s *Statements) SelectAgreementByID() string {
	return selectAgreementBase + "\nWHERE a.id = $1"
}

func (s *Statements) NegotiationExists() string {
	return `SELECT EXISTS (SELECT 1 FROM contract_negotiations WHERE id = $1)`
}

func (s *Statements) UpsertNegotiation() string {
	return `INSERT INTO contract_negotiations
	(id, correlation_id, counterparty_id, counterparty_address, protocol, type, state,
	state_count, state_timestamp, pending, error_detail, contract_offers,
	callback_addresses, trace_context, agreement_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
	correlation_id = EXCLUDED.correlation_id,
	counterparty_id = EXCLUDED.counterparty_id,
	counterparty_address = EXCLUDED.counterparty_address,
	protocol = EXCLUDED.protocol,
	type = EXCLUDED.type,
	state = EXCLUDED.state,
	state_count = EXCLUDED.state_count,
	state_timestamp = EXCLUDED.state_timestamp,
	pending = EXCLUDED.pending,
	error_detail = EXCLUDED.error_detail,
	contract_offers = EXCLUDED.contract_offers,
	callback_addresses = EXCLUDED.callback_addresses,
	trace_context = EXCLUDED.trace_context,
	agreement_id = EXCLUDED.agreement_id,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at`
}

func (s *Statements) UpsertAgreement() string {
	return `INSERT INTO contract_agreements (id, provider_id, consumer_id, asset_id, signing_date, policy)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
	provider_id = EXCLUDED.provider_id,
	consumer_id = EXCLUDED.consumer_id,
	asset_id = EXCLUDED.asset_id,
	signing_date = EXCLUDED.signing_date,
	policy = EXCLUDED.policy`
}

func (s *Statements) DeleteNegotiation() string {
	return `DELETE FROM contract_negotiations WHERE id = $1`
}

func (s *Statements) SelectLease() string {
	return `SELECT holder_id, leased_at, lease_duration FROM leases WHERE entity_id = $1`
}

// UpsertLease acquires or refreshes a lease in one statement. The update arm
// only fires when the current holder matches or the row has expired at $3,
// so zero affected rows means someone else holds a live lease.
func (s *Statements) UpsertLease() string {
	return `INSERT INTO leases (entity_id, holder_id, leased_at, lease_duration)
VALUES ($1, $2, $3, $4)
ON CONFLICT (entity_id) DO UPDATE SET
	holder_id = EXCLUDED.holder_id,
	leased_at = EXCLUDED.leased_at,
	lease_duration = EXCLUDED.lease_duration
WHERE leases.holder_id = EXCLUDED.holder_id
	OR leases.leased_at + leases.lease_duration <= $3`
}

func (s *Statements) DeleteLease() string {
	return `DELETE FROM leases WHERE entity_id = $1`
}

// QueryNegotiations compiles a normalized spec into a paginated select.
func (s *Statements) QueryNegotiations(spec query.Spec) (string, []any, error) {
	args := &argList{}
	where, err := negotiationWhere(spec.Filter, args)
	if err != nil {
		return "", nil, err
	}
	order, err := orderBy(spec, negotiationColumns, "n.id")
	if err != nil {
		return "", nil, err
	}

	sql := selectNegotiationBase
	if where != "" {
		sql += "\nWHERE " + where
	}
	sql += "\nORDER BY " + order
	sql += "\nLIMIT " + args.add(spec.Limit) + " OFFSET " + args.add(spec.Offset)
	return sql, args.args, nil
}

// QueryAgreements compiles a normalized spec against the agreements table.
func (s *Statements) QueryAgreements(spec query.Spec) (string, []any, error) {
	args := &argList{}
	parts := make([]string, 0, len(spec.Filter))
	for _, c := range spec.Filter {
		col, ok := agreementColumns[c.OperandLeft]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field path %q", query.ErrInvalidQuery, c.OperandLeft)
		}
		p, err := scalarComparison(col, c, args)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, p)
	}
	order, err := orderBy(spec, agreementColumns, "a.id")
	if err != nil {
		return "", nil, err
	}

	sql := selectAgreementBase
	if len(parts) > 0 {
		sql += "\nWHERE " + strings.Join(parts, " AND ")
	}
	sql += "\nORDER BY " + order
	sql += "\nLIMIT " + args.add(spec.Limit) + " OFFSET " + args.add(spec.Offset)
	return sql, args.args, nil
}

// NextNotLeased selects the oldest rows matching criteria whose lease is
// absent or expired at nowMillis, ordered for fair draining.
func (s *Statements) NextNotLeased(max int, nowMillis int64, criteria ...query.Criterion) (string, []any, error) {
	args := &argList{}
	free := "(l.entity_id IS NULL OR l.leased_at + l.lease_duration <= " + args.add(nowMillis) + ")"
	where, err := negotiationWhere(criteria, args)
	if err != nil {
		return "", nil, err
	}

	sql := selectNegotiationBase + "\nLEFT JOIN leases l ON l.entity_id = n.id"
	sql += "\nWHERE " + free
	if where != "" {
		sql += " AND " + where
	}
	sql += "\nORDER BY n.state_timestamp ASC, n.id ASC"
	sql += "\nLIMIT " + args.add(max)
	return sql, args.args, nil
}

func negotiationWhere(criteria []query.Criterion, args *argList) (string, error) {
	parts := make([]string, 0, len(criteria))
	for _, c := range criteria {
		p, err := negotiationPredicate(c, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " AND "), nil
}

func negotiationPredicate(c query.Criterion, args *argList) (string, error) {
	path := c.OperandLeft
	if col, ok := negotiationColumns[path]; ok {
		return scalarComparison(col, c, args)
	}
	if col, ok := agreementJoinColumns[path]; ok {
		return scalarComparison(col, c, args)
	}
	if key, ok := offerElementKeys[path]; ok {
		return elementPredicate("n.contract_offers", "elem->>'"+key+"'", c, args)
	}
	if key, ok := callbackElementKeys[path]; ok {
		return elementPredicate("n.callback_addresses", "elem->>'"+key+"'", c, args)
	}
	if path == "callbackAddresses.transactional" {
		return elementPredicate("n.callback_addresses", "(elem->>'transactional')::boolean", c, args)
	}
	if path == "callbackAddresses.events" {
		return eventsPredicate(c, args)
	}
	if key, ok := strings.CutPrefix(path, "traceContext."); ok && key != "" {
		return tracePredicate(key, c, args)
	}
	return "", fmt.Errorf("%w: unknown field path %q", query.ErrInvalidQuery, path)
}

// elementPredicate matches any element of a jsonb array column. Negation
// holds only when the array is non-empty and no element matches, so rows
// without the sub-structure never satisfy it.
func elementPredicate(column, elemExpr string, c query.Criterion, args *argList) (string, error) {
	from := "FROM jsonb_array_elements(" + column + ") AS elem"
	if c.Operator == query.OpNotEqual {
		inner, err := scalarComparison(elemExpr, equalOf(c), args)
		if err != nil {
			return "", err
		}
		return "(jsonb_array_length(coalesce(" + column + ", '[]'::jsonb)) > 0" +
			" AND NOT EXISTS (SELECT 1 " + from + " WHERE " + inner + "))", nil
	}
	inner, err := scalarComparison(elemExpr, c, args)
	if err != nil {
		return "", err
	}
	return "EXISTS (SELECT 1 " + from + " WHERE " + inner + ")", nil
}

// eventsPredicate flattens the per-callback event lists before matching.
func eventsPredicate(c query.Criterion, args *argList) (string, error) {
	const from = "FROM jsonb_array_elements(n.callback_addresses) AS cb, jsonb_array_elements_text(cb->'events') AS ev"
	if c.Operator == query.OpNotEqual {
		inner, err := scalarComparison("ev", equalOf(c), args)
		if err != nil {
			return "", err
		}
		return "(jsonb_array_length(coalesce(n.callback_addresses, '[]'::jsonb)) > 0" +
			" AND NOT EXISTS (SELECT 1 " + from + " WHERE " + inner + "))", nil
	}
	inner, err := scalarComparison("ev", c, args)
	if err != nil {
		return "", err
	}
	return "EXISTS (SELECT 1 " + from + " WHERE " + inner + ")", nil
}

// tracePredicate binds the trace context key as a parameter too. A missing
// key yields NULL and falls out of every operator.
func tracePredicate(key string, c query.Criterion, args *argList) (string, error) {
	expr := "n.trace_context->>" + args.add(key)
	if c.Operator == query.OpNotEqual {
		return "(" + expr + " IS NOT NULL AND " + expr + " <> " + args.add(c.OperandRight) + ")", nil
	}
	return scalarComparison(expr, c, args)
}

func equalOf(c query.Criterion) query.Criterion {
	return query.Criterion{OperandLeft: c.OperandLeft, Operator: query.OpEqual, OperandRight: c.OperandRight}
}

func scalarComparison(expr string, c query.Criterion, args *argList) (string, error) {
	switch c.Operator {
	case query.OpEqual:
		return expr + " = " + args.add(c.OperandRight), nil
	case query.OpNotEqual:
		return expr + " <> " + args.add(c.OperandRight), nil
	case query.OpIn:
		values, err := collectionValues(c.OperandRight)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			// An empty set matches nothing.
			return "FALSE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = args.add(v)
		}
		return expr + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	case query.OpLike:
		return expr + " LIKE " + args.add(c.OperandRight), nil
	case query.OpILike:
		return expr + " ILIKE " + args.add(c.OperandRight), nil
	default:
		return "", fmt.Errorf("%w: unsupported operator %q", query.ErrInvalidQuery, c.Operator)
	}
}

func collectionValues(v any) ([]any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: operator %q requires a collection operand", query.ErrInvalidQuery, query.OpIn)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: operator %q requires a collection operand, got %T", query.ErrInvalidQuery, query.OpIn, v)
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func orderBy(spec query.Spec, columns map[string]string, idColumn string) (string, error) {
	if spec.SortField == "" {
		return idColumn + " ASC", nil
	}
	col, ok := columns[spec.SortField]
	if !ok {
		return "", fmt.Errorf("%w: field %q cannot be used for sorting", query.ErrInvalidQuery, spec.SortField)
	}
	dir := "ASC"
	if spec.SortOrder == query.SortDesc {
		dir = "DESC"
	}
	if col == idColumn {
		return col + " " + dir, nil
	}
	return col + " " + dir + ", " + idColumn + " ASC", nil
}
