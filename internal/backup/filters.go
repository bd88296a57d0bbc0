package backup

import (
	"fmt"
	"strings"
	"time"
)

// FilterKind tags the FilterSpec variants
type FilterKind int

const (
	// FilterRawQuery carries a caller-supplied SELECT used verbatim
	FilterRawQuery FilterKind = iota
	// FilterPredicate builds a SELECT from one column condition
	FilterPredicate
	// FilterComposite combines child filters with AND or OR
	FilterComposite
)

// CompositeOp joins composite children
type CompositeOp string

const (
	CompositeAnd CompositeOp = "AND"
	CompositeOr  CompositeOp = "OR"
)

// FilterSpec is the tagged union describing one table's row filter. It is
// resolved into SELECT text exactly once per table by Build.
//
// A RawQuery filter is accepted verbatim and is NOT sanitized against
// injection; it is trusted input. Callers constructing filters from
// untrusted values must parameterize before building the spec.
type FilterSpec struct {
	Kind FilterKind

	// RawQuery
	Query string

	// Predicate
	Column   string
	Operator string
	Args     []interface{}

	// Composite
	Op       CompositeOp
	Children []FilterSpec
}

// Build resolves the spec into a single read-only SELECT over the given
// (possibly schema-qualified) table name. This is the one dispatch point over
// the union; no other code inspects Kind.
func (f FilterSpec) Build(tableName string) (string, error) {
	switch f.Kind {
	case FilterRawQuery:
		if strings.TrimSpace(f.Query) == "" {
			return "", NewValidationError("raw query filter is empty", nil)
		}
		return f.Query, nil

	case FilterPredicate, FilterComposite:
		cond, err := f.condition()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("SELECT * FROM %s WHERE %s", tableName, cond), nil

	default:
		return "", NewValidationError(fmt.Sprintf("unknown filter kind: %d", f.Kind), nil)
	}
}

// condition renders a predicate or composite as a WHERE fragment
func (f FilterSpec) condition() (string, error) {
	switch f.Kind {
	case FilterPredicate:
		return f.predicateCondition()

	case FilterComposite:
		if len(f.Children) == 0 {
			return "", NewValidationError("composite filter has no children", nil)
		}
		op := f.Op
		if op == "" {
			op = CompositeAnd
		}
		parts := make([]string, 0, len(f.Children))
		for _, child := range f.Children {
			cond, err := child.condition()
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+cond+")")
		}
		return strings.Join(parts, " "+string(op)+" "), nil

	case FilterRawQuery:
		return "", NewValidationError("raw query filters cannot be nested in a composite", nil)

	default:
		return "", NewValidationError(fmt.Sprintf("unknown filter kind: %d", f.Kind), nil)
	}
}

func (f FilterSpec) predicateCondition() (string, error) {
	if f.Column == "" {
		return "", NewValidationError("predicate filter requires a column", nil)
	}

	col := quoteIdent(f.Column)
	op := strings.ToUpper(strings.TrimSpace(f.Operator))

	switch op {
	case "=", "!=", "<>", "<", "<=", ">", ">=", "LIKE", "ILIKE":
		if len(f.Args) != 1 {
			return "", NewValidationError(
				fmt.Sprintf("operator %s requires exactly one argument", op), nil)
		}
		return fmt.Sprintf("%s %s %s", col, op, formatValue(f.Args[0])), nil

	case "IN", "NOT IN":
		// An empty IN list selects nothing; an empty NOT IN selects everything.
		if len(f.Args) == 0 {
			if op == "IN" {
				return "1=0", nil
			}
			return "1=1", nil
		}
		values := make([]string, len(f.Args))
		for i, a := range f.Args {
			values[i] = formatValue(a)
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(values, ", ")), nil

	case "BETWEEN":
		if len(f.Args) != 2 {
			return "", NewValidationError("BETWEEN requires exactly two arguments", nil)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s",
			col, formatValue(f.Args[0]), formatValue(f.Args[1])), nil

	case "IS NULL", "IS NOT NULL":
		if len(f.Args) != 0 {
			return "", NewValidationError(fmt.Sprintf("%s takes no arguments", op), nil)
		}
		return fmt.Sprintf("%s %s", col, op), nil

	default:
		return "", NewValidationError(fmt.Sprintf("unsupported operator: %q", f.Operator), nil)
	}
}

// formatValue renders a filter argument as a SQL literal
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteLiteral(val)
	case time.Time:
		return quoteLiteral(val.Format("2006-01-02 15:04:05"))
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case fmt.Stringer:
		return quoteLiteral(val.String())
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Convenience constructors

// RawQueryFilter wraps a caller-supplied SELECT. The text is trusted and
// issued verbatim.
func RawQueryFilter(query string) FilterSpec {
	return FilterSpec{Kind: FilterRawQuery, Query: query}
}

// PredicateFilter builds a single-column condition filter
func PredicateFilter(column, operator string, args ...interface{}) FilterSpec {
	return FilterSpec{Kind: FilterPredicate, Column: column, Operator: operator, Args: args}
}

// CompositeFilter combines filters with AND or OR
func CompositeFilter(op CompositeOp, children ...FilterSpec) FilterSpec {
	return FilterSpec{Kind: FilterComposite, Op: op, Children: children}
}

// DateRangeFilter keeps rows whose date column falls inside [start, end]
func DateRangeFilter(column string, start, end time.Time) FilterSpec {
	return PredicateFilter(column, "BETWEEN", start, end)
}

// ForeignKeyFilter keeps rows whose key column matches one of the given
// values. With no values it selects nothing.
func ForeignKeyFilter(column string, values ...interface{}) FilterSpec {
	return PredicateFilter(column, "IN", values...)
}

// StatusFilter keeps rows whose status column is in allowed and not in
// excluded; either list may be empty.
func StatusFilter(column string, allowed, excluded []string) FilterSpec {
	var children []FilterSpec

	if len(allowed) > 0 {
		args := make([]interface{}, len(allowed))
		for i, s := range allowed {
			args[i] = s
		}
		children = append(children, PredicateFilter(column, "IN", args...))
	}
	if len(excluded) > 0 {
		args := make([]interface{}, len(excluded))
		for i, s := range excluded {
			args[i] = s
		}
		children = append(children, PredicateFilter(column, "NOT IN", args...))
	}

	switch len(children) {
	case 0:
		// Nothing to constrain; match everything.
		return PredicateFilter(column, "NOT IN")
	case 1:
		return children[0]
	default:
		return CompositeFilter(CompositeAnd, children...)
	}
}
