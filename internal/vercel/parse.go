package vercel

import (
	"strings"
	"unicode"
)

// boxDrawing covers the characters the CLI uses to frame its table.
const boxDrawing = "─━┌└┼│┐┘ "

// ParseListTable extracts deployment id candidates from the human-readable
// `vercel list` output. The table mixes a version banner, column headers,
// box-drawing separators and data rows; a data row contributes at most one
// candidate, the first token that looks like a deployment URL or a raw id.
func ParseListTable(out string) []string {
	var ids []string
	for _, line := range strings.Split(out, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, "Vercel CLI") {
			continue
		}
		lower := strings.ToLower(stripped)
		if strings.HasPrefix(lower, "age ") || strings.HasPrefix(lower, "deployment") || strings.HasPrefix(lower, "id ") {
			continue
		}
		if isDecorative(stripped) {
			continue
		}

		// Column order varies across CLI versions (newer ones lead with
		// Age), so take the first token of the row that qualifies.
		for _, field := range strings.Fields(stripped) {
			if looksLikeDeploymentID(field) {
				ids = append(ids, field)
				break
			}
		}
	}
	return ids
}

func isDecorative(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(boxDrawing, r) {
			return false
		}
	}
	return true
}

// looksLikeDeploymentID accepts deployment URLs, dpl_-prefixed ids, and bare
// alphanumeric ids of at least 8 characters containing at least one digit.
// The digit requirement filters out stray English words that survive the
// header heuristics.
func looksLikeDeploymentID(token string) bool {
	if strings.HasPrefix(token, "https://") || strings.Contains(token, ".vercel.app") {
		return true
	}
	if strings.HasPrefix(token, "dpl_") {
		return true
	}
	if len(token) < 8 {
		return false
	}
	hasDigit := false
	for _, r := range token {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	return hasDigit
}
