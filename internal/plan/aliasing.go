package plan

import (
	"regexp"
	"strconv"
)

// placeholderPrefix starts the names the planner gives unnamed expressions.
const placeholderPrefix = "EXPR$"

var placeholderName = regexp.MustCompile(`^EXPR\$[0-9]+$`)

// PlaceholderName returns the generated name for the i-th output column.
func PlaceholderName(i int) string {
	return placeholderPrefix + strconv.Itoa(i)
}

// IsPlaceholder reports whether name has the generated placeholder shape.
func IsPlaceholder(name string) bool {
	return placeholderName.MatchString(name)
}

// AllAliased reports whether every output column of the plan's root has a
// user-visible name. Columns are checked by the Generated flag, and by name
// for plans built by planners that do not set it.
func AllAliased(p *StreamingPlan) bool {
	for _, c := range p.OutputColumns() {
		if c.Generated || IsPlaceholder(c.Name) {
			return false
		}
	}
	return true
}
