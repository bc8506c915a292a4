package compare

import "strings"

// UnifiedDiff renders a minimal line-based diff between two texts, with "-"
// marking reference-only lines and "+" marking candidate-only lines. Common
// lines are prefixed with two spaces.
func UnifiedDiff(ref, cand string) string {
	a := strings.Split(ref, "\n")
	b := strings.Split(cand, "\n")

	// Longest common subsequence over lines.
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var sb strings.Builder
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			sb.WriteString("  " + a[i] + "\n")
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			sb.WriteString("- " + a[i] + "\n")
			i++
		default:
			sb.WriteString("+ " + b[j] + "\n")
			j++
		}
	}
	for ; i < len(a); i++ {
		sb.WriteString("- " + a[i] + "\n")
	}
	for ; j < len(b); j++ {
		sb.WriteString("+ " + b[j] + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
