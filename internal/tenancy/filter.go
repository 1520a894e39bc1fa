package tenancy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TenantFilterable abstracts the query being narrowed so the guard does not
// depend on a concrete query builder.
type TenantFilterable interface {
	// WithEqualityFilter narrows the query to rows whose column equals value.
	WithEqualityFilter(column string, value any) TenantFilterable
	// WithOwnerFilter narrows the query to rows owned by the user or
	// belonging to the school (used for the account table, where a row is
	// visible to its owner even without matching tenancy).
	WithOwnerFilter(ownerID, schoolID uuid.UUID) TenantFilterable
	// WithImpossibleFilter narrows the query to match zero rows.
	WithImpossibleFilter() TenantFilterable
}

// Tables known to carry a school_id column.
var tenantScopedTables = map[string]struct{}{
	"students":     {},
	"classes":      {},
	"grade_records": {},
	"fee_balances": {},
	"announcements": {},
	"audit_logs":   {},
}

// usersTable is the principal-identity table; it gets owner-or-school
// filtering instead of plain equality.
const usersTable = "users"

// ApplySchoolFilter narrows q to the principal's tenant for the named table.
// Administrators pass through unchanged. Principals without an assigned school
// receive a filter matching zero rows: fail closed, never fail open. Tables
// outside the tenant-scoped set pass through untouched.
func (g *Guard) ApplySchoolFilter(q TenantFilterable, table string) TenantFilterable {
	if g.principal.IsAdmin() {
		return q
	}
	_, scoped := tenantScopedTables[table]
	if !scoped && table != usersTable {
		return q
	}
	if !g.principal.HasSchool() {
		return q.WithImpossibleFilter()
	}
	if table == usersTable {
		return q.WithOwnerFilter(g.principal.UserID, g.principal.SchoolID)
	}
	return q.WithEqualityFilter("school_id", g.principal.SchoolID)
}

// Condition is a small SQL condition builder implementing TenantFilterable.
// It renders a WHERE fragment with positional placeholders starting at the
// given offset, for use with pgx queries.
type Condition struct {
	clauses    []string
	args       []any
	impossible bool
}

// NewCondition returns an empty condition (matches everything).
func NewCondition() *Condition {
	return &Condition{}
}

// WithEqualityFilter implements TenantFilterable.
func (c *Condition) WithEqualityFilter(column string, value any) TenantFilterable {
	c.clauses = append(c.clauses, column+" = ?")
	c.args = append(c.args, value)
	return c
}

// WithRangeFilter narrows the query to rows whose column compares against
// value with the given operator (one of <, <=, >, >=).
func (c *Condition) WithRangeFilter(column, op string, value any) *Condition {
	c.clauses = append(c.clauses, column+" "+op+" ?")
	c.args = append(c.args, value)
	return c
}

// WithOwnerFilter implements TenantFilterable.
func (c *Condition) WithOwnerFilter(ownerID, schoolID uuid.UUID) TenantFilterable {
	c.clauses = append(c.clauses, "(id = ? OR school_id = ?)")
	c.args = append(c.args, ownerID, schoolID)
	return c
}

// WithImpossibleFilter implements TenantFilterable.
func (c *Condition) WithImpossibleFilter() TenantFilterable {
	c.impossible = true
	return c
}

// Impossible reports whether the condition can never match. Repositories may
// skip the query entirely when true.
func (c *Condition) Impossible() bool {
	return c.impossible
}

// SQL renders the condition as a WHERE fragment (without the WHERE keyword),
// numbering placeholders from startIndex. An empty condition renders "TRUE";
// an impossible one renders "FALSE".
func (c *Condition) SQL(startIndex int) (string, []any) {
	if c.impossible {
		return "FALSE", nil
	}
	if len(c.clauses) == 0 {
		return "TRUE", nil
	}
	var sb strings.Builder
	idx := startIndex
	for i, clause := range c.clauses {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		for _, r := range clause {
			if r == '?' {
				fmt.Fprintf(&sb, "$%d", idx)
				idx++
				continue
			}
			sb.WriteRune(r)
		}
	}
	return sb.String(), c.args
}
