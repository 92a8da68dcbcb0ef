package seo

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var schemaNames = map[string]string{
	"article":             "Article",
	"webpage":             "WebPage",
	"blogposting":         "Blog Posting",
	"newsarticle":         "News Article",
	"product":             "Product",
	"review":              "Review",
	"localbusiness":       "Local Business",
	"organization":        "Organization",
	"person":              "Person",
	"event":               "Event",
	"recipe":              "Recipe",
	"video":               "Video",
	"book":                "Book",
	"course":              "Course",
	"faq":                 "FAQ",
	"howto":               "How To",
	"jobposting":          "Job Posting",
	"movie":               "Movie",
	"music":               "Music",
	"restaurant":          "Restaurant",
	"service":             "Service",
	"softwareapplication": "Software Application",
	"website":             "Website",
}

// FormatSchemaType maps a structured data identifier to its display name.
// Unknown identifiers are lower-cased with the first letter upper-cased.
func FormatSchemaType(raw string) string {
	id := strings.ToLower(raw)
	if name, ok := schemaNames[id]; ok {
		return name
	}
	r, size := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return id
	}
	return string(unicode.ToUpper(r)) + id[size:]
}

func acceptSchema(raw string) (string, bool) {
	if isBlank(raw) {
		return "", false
	}
	return FormatSchemaType(raw), true
}

// snippetOff disables a site-level default snippet type.
const snippetOff = "off"

func acceptSiteDefault(raw string) (string, bool) {
	if isBlank(raw) || raw == snippetOff {
		return "", false
	}
	return FormatSchemaType(raw), true
}
