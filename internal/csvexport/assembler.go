package csvexport

import (
	"strings"

	"github.com/seo-export/backend/internal/seo"
	"github.com/seo-export/backend/internal/storage/models"
)

// Header is the first row of every export.
var Header = []string{
	"Post Title",
	"Post URL",
	"Author",
	"Status",
	"Last Edit Date",
	"Categories",
	"Rank Math Score",
	"Rank Math Main Keyword",
	"Rank Math Structured Data Type",
	"Rank Math Internal Links",
	"Rank Math External Links",
	"Rank Math Incoming Links",
}

// Row pairs a record with its resolved metrics.
type Row struct {
	Post    models.Post
	Metrics seo.MetricSet
}

func (r Row) Fields() []string {
	return []string{
		Escape(r.Post.Title),
		Escape(r.Post.Permalink),
		Escape(r.Post.AuthorName),
		Escape(r.Post.Status),
		Escape(r.Post.Modified),
		Escape(strings.Join(r.Post.Categories, ", ")),
		Escape(r.Metrics.Score),
		Escape(r.Metrics.MainKeyword),
		Escape(r.Metrics.SchemaType),
		Escape(r.Metrics.InternalLinks),
		Escape(r.Metrics.ExternalLinks),
		Escape(r.Metrics.IncomingLinks),
	}
}

// Assemble renders the header and rows. Fields are joined with "," and every
// row, the last included, ends with "\n".
func Assemble(rows []Row) string {
	var b strings.Builder
	writeRow(&b, Header)
	for _, row := range rows {
		writeRow(&b, row.Fields())
	}
	return b.String()
}

func writeRow(b *strings.Builder, fields []string) {
	b.WriteString(strings.Join(fields, ","))
	b.WriteByte('\n')
}
