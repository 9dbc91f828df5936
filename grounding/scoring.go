package grounding

// Dedupe returns the distinct values of ids in first-seen order
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// PrecisionRecall compares predicted and reference identifiers as sets.
// Precision is 0 when nothing was predicted, recall is 0 when the reference set is empty.
func PrecisionRecall(predicted, reference []string) (precision, recall float64) {
	pred := toSet(predicted)
	ref := toSet(reference)

	hits := 0
	for id := range pred {
		if _, ok := ref[id]; ok {
			hits++
		}
	}

	if len(pred) > 0 {
		precision = float64(hits) / float64(len(pred))
	}
	if len(ref) > 0 {
		recall = float64(hits) / float64(len(ref))
	}
	return precision, recall
}

// CountFabricated counts the occurrences in cited that are absent from retrieved.
// Repeated fabricated citations are counted every time they occur.
func CountFabricated(cited, retrieved []string) int {
	ref := toSet(retrieved)
	n := 0
	for _, id := range cited {
		if _, ok := ref[id]; !ok {
			n++
		}
	}
	return n
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
