package planner

import (
	"fmt"
	"strings"
)

// IDSeparator joins ids in batch and composite-key segments ("12+45+91").
const IDSeparator = "+"

// Clause is a parameterised SQL predicate fragment.
type Clause struct {
	SQL  string
	Args []any
}

// False matches no row.
var False = Clause{SQL: "0"}

// Empty reports whether the clause filters nothing.
func (c Clause) Empty() bool {
	return strings.TrimSpace(c.SQL) == ""
}

// Raw wraps a caller supplied selection.
func Raw(sql string, args ...any) Clause {
	return Clause{SQL: sql, Args: args}
}

// Equals matches column = value.
func Equals(column string, value any) Clause {
	return Clause{SQL: column + " = ?", Args: []any{value}}
}

// IsNull matches column IS NULL.
func IsNull(column string) Clause {
	return Clause{SQL: column + " IS NULL"}
}

// Like matches column LIKE %token%.
func Like(column, token string) Clause {
	return Clause{SQL: column + " LIKE ?", Args: []any{"%" + token + "%"}}
}

// AllOf joins the non-empty clauses with AND.
func AllOf(clauses ...Clause) Clause {
	return join(" AND ", clauses)
}

// OneOf joins the non-empty clauses with OR.
func OneOf(clauses ...Clause) Clause {
	return join(" OR ", clauses)
}

func join(op string, clauses []Clause) Clause {
	var parts []Clause
	for _, c := range clauses {
		if !c.Empty() {
			parts = append(parts, c)
		}
	}
	switch len(parts) {
	case 0:
		return Clause{}
	case 1:
		return parts[0]
	}

	var sb strings.Builder
	var args []any
	for i, c := range parts {
		if i > 0 {
			sb.WriteString(op)
		}
		sb.WriteString("(")
		sb.WriteString(c.SQL)
		sb.WriteString(")")
		args = append(args, c.Args...)
	}
	return Clause{SQL: sb.String(), Args: args}
}

// SplitIDs splits a batch segment on IDSeparator, dropping empty and
// repeated ids while keeping the caller's order.
func SplitIDs(segment string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range strings.Split(segment, IDSeparator) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// AnyOf is the OR of column = id for every id of a batch segment. A segment
// without ids matches nothing.
func AnyOf(column, segment string) Clause {
	ids := SplitIDs(segment)
	if len(ids) == 0 {
		return False
	}
	clauses := make([]Clause, len(ids))
	for i, id := range ids {
		clauses[i] = Equals(column, id)
	}
	return OneOf(clauses...)
}

// Composite decodes one segment holding a composite key, the parts joined by
// sep, into an AND of equalities over columns. Empty parts match NULL.
func Composite(columns []string, segment, sep string) (Clause, error) {
	parts := strings.Split(segment, sep)
	if len(parts) != len(columns) {
		return Clause{}, fmt.Errorf("composite key %q: want %d parts, got %d", segment, len(columns), len(parts))
	}
	clauses := make([]Clause, len(columns))
	for i, col := range columns {
		if parts[i] == "" {
			clauses[i] = IsNull(col)
			continue
		}
		clauses[i] = Equals(col, parts[i])
	}
	return AllOf(clauses...), nil
}

// CompositeAny decodes a batch of composite keys: keys are joined by
// IDSeparator, the parts of each key by sep.
func CompositeAny(columns []string, segment, sep string) (Clause, error) {
	keys := SplitIDs(segment)
	if len(keys) == 0 {
		return False, nil
	}
	clauses := make([]Clause, 0, len(keys))
	for _, key := range keys {
		c, err := Composite(columns, key, sep)
		if err != nil {
			return Clause{}, err
		}
		clauses = append(clauses, c)
	}
	return OneOf(clauses...), nil
}
