package memory

import "strings"

// EnrichedText assembles the embedding text for a record: content,
// context, error_message, solution, then tags, each separated by a
// single space, empty fields omitted, no further normalization.
func EnrichedText(r Record) string {
	parts := make([]string, 0, 5)
	if r.Content != "" {
		parts = append(parts, r.Content)
	}
	if r.Context != "" {
		parts = append(parts, r.Context)
	}
	if r.ErrorMessage != "" {
		parts = append(parts, r.ErrorMessage)
	}
	if r.Solution != "" {
		parts = append(parts, r.Solution)
	}
	if len(r.Tags) > 0 {
		parts = append(parts, strings.Join(r.Tags, " "))
	}
	return strings.Join(parts, " ")
}

// SolutionOrError returns the "solution or error_message" sub-view used
// by composite embedding: solution if present, else
// error_message, else empty.
func SolutionOrError(r Record) string {
	if r.Solution != "" {
		return r.Solution
	}
	return r.ErrorMessage
}
