// Package query builds the ad search predicates shared by the serving layer
// and the maintenance sweeps. Predicates are portable SQL fragments with
// positional arguments, applied through gorm's Where.
package query

import (
	"strings"

	"gorm.io/gorm"
)

// Predicate is a WHERE fragment with its arguments.
type Predicate struct {
	SQL  string
	Args []any
}

func Where(sql string, args ...any) Predicate {
	return Predicate{SQL: sql, Args: args}
}

func (p Predicate) Empty() bool {
	return strings.TrimSpace(p.SQL) == ""
}

// And joins the non-empty predicates with AND.
func And(ps ...Predicate) Predicate {
	return join(" AND ", ps)
}

// Or joins the non-empty predicates with OR.
func Or(ps ...Predicate) Predicate {
	return join(" OR ", ps)
}

func join(sep string, ps []Predicate) Predicate {
	var kept []Predicate
	for _, p := range ps {
		if !p.Empty() {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return Predicate{}
	case 1:
		return kept[0]
	}
	parts := make([]string, 0, len(kept))
	var args []any
	for _, p := range kept {
		parts = append(parts, "("+p.SQL+")")
		args = append(args, p.Args...)
	}
	return Predicate{SQL: strings.Join(parts, sep), Args: args}
}

// Apply adds p to tx. An empty predicate leaves tx unchanged.
func (p Predicate) Apply(tx *gorm.DB) *gorm.DB {
	if p.Empty() {
		return tx
	}
	return tx.Where(p.SQL, p.Args...)
}

// In matches col against ids; a single id becomes an equality.
func In(col string, ids []int64) Predicate {
	switch len(ids) {
	case 0:
		return Predicate{}
	case 1:
		return Where(col+" = ?", ids[0])
	default:
		return Where(col+" IN ?", ids)
	}
}

// Plan is a complete search: the predicate, its ordering and the page.
type Plan struct {
	Where  Predicate
	Order  string
	Limit  int
	Offset int
}

// Apply adds the predicate, order and page of p to tx.
func (p Plan) Apply(tx *gorm.DB) *gorm.DB {
	tx = p.Where.Apply(tx)
	if p.Order != "" {
		tx = tx.Order(p.Order)
	}
	if p.Limit > 0 {
		tx = tx.Limit(p.Limit)
	}
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	return tx
}

const (
	FirstPageSize = 10
	PageSize      = 5
)

// Page returns the limit and offset of the page starting at row start. The
// first page is larger than the following ones.
func Page(start int) (limit, offset int) {
	if start <= 0 {
		return FirstPageSize, 0
	}
	return PageSize, start
}
