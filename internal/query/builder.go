package query

import (
	"strings"

	"github.com/seo-export/backend/internal/storage/sqlite"
)

// All disables the type or status condition of a Filter.
const All = "all"

// Filter selects the records of an export. Dates are YYYY-MM-DD and may be
// empty.
type Filter struct {
	RecordType   string `json:"post_type" form:"post_type"`
	RecordStatus string `json:"post_status" form:"post_status"`
	DateFrom     string `json:"date_from" form:"date_from"`
	DateTo       string `json:"date_to" form:"date_to"`
}

// Tables holds the resolved names of the tables a query reads.
type Tables struct {
	Posts string
	Users string
}

// Build returns the statement selecting the records matched by f, newest
// modification first. Every filter value is returned as a bound argument.
func Build(f Filter, t Tables) (string, []any) {
	var conditions []string
	args := []any{}

	if f.RecordType != All {
		conditions = append(conditions, "p.post_type = ?")
		args = append(args, f.RecordType)
	}
	if f.RecordStatus != All {
		conditions = append(conditions, "p.post_status = ?")
		args = append(args, f.RecordStatus)
	}
	if f.DateFrom != "" {
		conditions = append(conditions, "p.post_modified >= ?")
		args = append(args, f.DateFrom+" 00:00:00")
	}
	if f.DateTo != "" {
		conditions = append(conditions, "p.post_modified <= ?")
		args = append(args, f.DateTo+" 23:59:59")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(sqlite.PostColumns)
	b.WriteString(" FROM ")
	b.WriteString(t.Posts)
	b.WriteString(" p LEFT JOIN ")
	b.WriteString(t.Users)
	b.WriteString(" u ON p.post_author = u.ID")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY p.post_modified DESC")

	return b.String(), args
}
