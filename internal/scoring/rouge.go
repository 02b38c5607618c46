package scoring

// rougeL computes the ROUGE-L F-measure between two token sequences: the
// harmonic mean of LCS-based precision and recall.
func rougeL(prediction, reference []string) float64 {
	if len(prediction) == 0 || len(reference) == 0 {
		return 0.0
	}
	lcs := lcsLength(prediction, reference)
	if lcs == 0 {
		return 0.0
	}
	precision := float64(lcs) / float64(len(prediction))
	recall := float64(lcs) / float64(len(reference))
	return 2 * precision * recall / (precision + recall)
}

// lcsLength is the classic O(len(a)*len(b)) longest-common-subsequence DP,
// kept to two rolling rows.
func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
