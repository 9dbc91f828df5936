package grounding

import "regexp"

var (
	ecliCandidate = regexp.MustCompile(`ECLI:\S+`)
	trailingPunct = regexp.MustCompile(`[*).,;:\]]+$`)
	ecliGrammar   = regexp.MustCompile(`^ECLI:[A-Z]{2}:[A-Z]+:\d{4}:\d+$`)
)

// ExtractCitations returns every well-formed ECLI in text in order of appearance,
// duplicates included. Candidates that do not match the ECLI grammar after
// trailing punctuation is stripped are dropped.
func ExtractCitations(text string) []string {
	matches := ecliCandidate.FindAllString(text, -1)
	citations := make([]string, 0, len(matches))
	for _, m := range matches {
		cleaned := trailingPunct.ReplaceAllString(m, "")
		if ecliGrammar.MatchString(cleaned) {
			citations = append(citations, cleaned)
		}
	}
	return citations
}

// IsECLI reports whether s is a well-formed ECLI
func IsECLI(s string) bool {
	return ecliGrammar.MatchString(s)
}
