package query

import (
	"errors"
	"fmt"
	"reflect"
)

// Supported filter operators.
const (
	OpEqual    = "="
	OpNotEqual = "!="
	OpIn       = "in"
	OpLike     = "like"
	OpILike    = "ilike"
)

// SortOrder is the direction of the optional sort field.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Page size bounds applied to every query, whether or not the caller set one.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// ErrInvalidQuery marks a spec that failed validation. Callers match it with
// errors.Is to distinguish bad input from backend failures.
var ErrInvalidQuery = errors.New("invalid query")

// Criterion is a single filter expression (path, operator, value).
type Criterion struct {
	OperandLeft  string `json:"operandLeft"`
	Operator     string `json:"operator"`
	OperandRight any    `json:"operandRight"`
}

func NewCriterion(left, operator string, right any) Criterion {
	return Criterion{OperandLeft: left, Operator: operator, OperandRight: right}
}

// Spec is a backend-agnostic filter/sort/pagination request. The zero value
// is usable; Normalized fills in page-size defaults.
type Spec struct {
	Filter    []Criterion `json:"filter,omitempty"`
	SortField string      `json:"sortField,omitempty"`
	SortOrder SortOrder   `json:"sortOrder,omitempty"`
	Offset    int         `json:"offset"`
	Limit     int         `json:"limit"`
}

// None requests everything up to the default page size, in backend-natural
// order.
func None() Spec {
	return Spec{Limit: DefaultLimit}
}

// Max requests everything up to the maximum page size, in backend-natural
// order.
func Max() Spec {
	return Spec{Limit: MaxLimit}
}

// New builds a spec from filter criteria with the default page size.
func New(criteria ...Criterion) Spec {
	return Spec{Filter: criteria, Limit: DefaultLimit}
}

// Normalized returns a copy with the page size bounded: unset or non-positive
// limits become DefaultLimit, oversized limits are capped at MaxLimit.
func (s Spec) Normalized() Spec {
	if s.Limit <= 0 {
		s.Limit = DefaultLimit
	}
	if s.Limit > MaxLimit {
		s.Limit = MaxLimit
	}
	return s
}

// Validate fails fast on malformed specs: negative offsets, unsupported
// operators, malformed operands, unknown sort orders, and filter or sort
// paths the target entity does not expose (checked via knownPath).
func (s Spec) Validate(knownPath func(string) bool) error {
	if s.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative, got %d", ErrInvalidQuery, s.Offset)
	}
	for _, c := range s.Filter {
		if err := c.validate(knownPath); err != nil {
			return err
		}
	}
	switch s.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: unsupported sort order %q", ErrInvalidQuery, s.SortOrder)
	}
	if s.SortField != "" && knownPath != nil && !knownPath(s.SortField) {
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, s.SortField)
	}
	return nil
}

func (c Criterion) validate(knownPath func(string) bool) error {
	if c.OperandLeft == "" {
		return fmt.Errorf("%w: criterion is missing a field path", ErrInvalidQuery)
	}
	switch c.Operator {
	case OpEqual, OpNotEqual, OpLike, OpILike:
	case OpIn:
		if !isCollection(c.OperandRight) {
			return fmt.Errorf("%w: operator %q requires a collection operand, got %T", ErrInvalidQuery, OpIn, c.OperandRight)
		}
	default:
		return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, c.Operator)
	}
	if knownPath != nil && !knownPath(c.OperandLeft) {
		return fmt.Errorf("%w: unknown field path %q", ErrInvalidQuery, c.OperandLeft)
	}
	return nil
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
