package export

import "errors"

// Validation and outcome errors. Each maps to the message shown to the
// admin through Message.
var (
	ErrInvalidType     = errors.New("invalid post type")
	ErrInvalidStatus   = errors.New("invalid post status")
	ErrInvalidDateFrom = errors.New("invalid date from")
	ErrInvalidDateTo   = errors.New("invalid date to")
	ErrNoRecords       = errors.New("no matching records")
	ErrGeneration      = errors.New("csv generation failed")
	ErrNoDebugRecord   = errors.New("no published post to debug")
)

var messages = []struct {
	err error
	msg string
}{
	{ErrInvalidType, "Invalid post type specified."},
	{ErrInvalidStatus, "Invalid post status specified."},
	{ErrInvalidDateFrom, `Invalid date format for "Date From".`},
	{ErrInvalidDateTo, `Invalid date format for "Date To".`},
	{ErrNoRecords, "No posts found matching the selected filters."},
	{ErrGeneration, "Failed to generate CSV data."},
	{ErrNoDebugRecord, "No posts found to debug."},
}

// Message returns the admin-facing text of a structured export error. It
// reports false for any other error.
func Message(err error) (string, bool) {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg, true
		}
	}
	return "", false
}
