package errors

import (
	"fmt"
	"strings"
)

// RowIssue describes a CSV row that was skipped or partially understood.
// Row issues never abort an import.
type RowIssue struct {
	Line   int       `json:"line"`
	Column string    `json:"column,omitempty"`
	Value  string    `json:"value,omitempty"`
	Code   ErrorCode `json:"code"`
	Reason string    `json:"reason"`
}

func (i RowIssue) String() string {
	if i.Column != "" {
		return fmt.Sprintf("line %d, column '%s' (%q): %s", i.Line, i.Column, i.Value, i.Reason)
	}
	return fmt.Sprintf("line %d: %s", i.Line, i.Reason)
}

// RowIssueCollector accumulates row issues up to a limit; the count keeps
// growing past the limit so callers can report how many were dropped.
type RowIssueCollector struct {
	issues []RowIssue
	limit  int
	total  int
}

// NewRowIssueCollector creates a collector retaining at most limit issues.
// A non-positive limit retains all of them.
func NewRowIssueCollector(limit int) *RowIssueCollector {
	return &RowIssueCollector{limit: limit}
}

// Add records an issue.
func (c *RowIssueCollector) Add(issue RowIssue) {
	c.total++
	if c.limit > 0 && len(c.issues) >= c.limit {
		return
	}
	c.issues = append(c.issues, issue)
}

// Issues returns the retained issues.
func (c *RowIssueCollector) Issues() []RowIssue {
	out := make([]RowIssue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Total returns how many issues were added, retained or not.
func (c *RowIssueCollector) Total() int {
	return c.total
}

// CountByCode groups the total of retained issues by code.
func (c *RowIssueCollector) CountByCode() map[ErrorCode]int {
	counts := make(map[ErrorCode]int)
	for _, issue := range c.issues {
		counts[issue.Code]++
	}
	return counts
}

// Format renders the retained issues for a user.
func (c *RowIssueCollector) Format() string {
	if c.total == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d row(s) skipped or degraded:\n", c.total)
	for _, issue := range c.issues {
		fmt.Fprintf(&b, "  - %s\n", issue)
	}
	if hidden := c.total - len(c.issues); hidden > 0 {
		fmt.Fprintf(&b, "  ... and %d more\n", hidden)
	}
	return b.String()
}
