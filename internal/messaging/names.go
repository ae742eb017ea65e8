package messaging

import (
	"fmt"
	"strings"
)

// ShownNames is how many member names a collapsed name list shows.
const ShownNames = 3

// CombinedNames joins names with ", ". Unless full is set, only the first
// ShownNames entries are listed and the rest are summarised as
// " and N other" / " and N others". Callers pass names in membership order.
func CombinedNames(names []string, full bool) string {
	extras := len(names) - ShownNames
	if full || extras <= 0 {
		return strings.Join(names, ", ")
	}

	plural := "s"
	if extras == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s and %d other%s", strings.Join(names[:ShownNames], ", "), extras, plural)
}
