package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Match reports whether a criterion holds for the values resolved at its
// field path. A path that descends into a repeated sub-structure resolves to
// one value per element; the criterion matches if any element satisfies it.
// An empty candidate set is a structural mismatch and never matches.
func Match(c Criterion, candidates []any) bool {
	if len(candidates) == 0 {
		return false
	}
	switch c.Operator {
	case OpEqual:
		return anyCandidate(candidates, func(v any) bool { return equalValues(v, c.OperandRight) })
	case OpNotEqual:
		return !anyCandidate(candidates, func(v any) bool { return equalValues(v, c.OperandRight) })
	case OpIn:
		set := collectionElements(c.OperandRight)
		return anyCandidate(candidates, func(v any) bool {
			for _, member := range set {
				if equalValues(v, member) {
					return true
				}
			}
			return false
		})
	case OpLike:
		return anyCandidate(candidates, func(v any) bool { return likeMatch(v, c.OperandRight, false) })
	case OpILike:
		return anyCandidate(candidates, func(v any) bool { return likeMatch(v, c.OperandRight, true) })
	default:
		return false
	}
}

func anyCandidate(candidates []any, pred func(any) bool) bool {
	for _, v := range candidates {
		if pred(v) {
			return true
		}
	}
	return false
}

func collectionElements(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

// equalValues compares loosely across the types JSON decoding and Go field
// access produce: all numeric kinds compare by value, everything else by
// its formatted string.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if as, ok := toBool(a); ok {
		bs, ok := toBool(b)
		return ok && as == bs
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// likeMatch applies SQL LIKE semantics: % matches any run, _ matches one
// character.
func likeMatch(value, pattern any, foldCase bool) bool {
	vs, ok := value.(string)
	if !ok {
		return false
	}
	ps, ok := pattern.(string)
	if !ok {
		return false
	}
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range ps {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	expr := sb.String()
	if foldCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(vs)
}

// Compare orders two resolved field values for sorting. Nil sorts first,
// numbers by value, booleans false before true, everything else as strings.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := toBool(a); ok {
		if bb, ok := toBool(b); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}
