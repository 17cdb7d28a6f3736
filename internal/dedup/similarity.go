package dedup

// Ratio scores the lexical similarity of two strings in [0, 1] as
// 2*LCS(a, b) / (len(a) + len(b)) over runes. Identical strings score 1.0,
// strings sharing no characters score 0.0.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	// Two-row DP for the longest common subsequence length.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return 2.0 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}
