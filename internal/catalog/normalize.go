package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// clean folds vendor text into NFC and trims surrounding whitespace so the
// same product name compares equal across vendors and runs.
func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
