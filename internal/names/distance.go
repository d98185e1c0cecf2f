package names

import (
	"sort"
	"strings"
)

// Distance computes the Levenshtein distance between two strings.
// It is case-insensitive.
func Distance(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Create matrix
	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	// Initialize first row and column
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	// Compute distances
	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			min := matrix[i-1][j] + 1 // deletion
			if ins := matrix[i][j-1] + 1; ins < min { // insertion
				min = ins
			}
			if sub := matrix[i-1][j-1] + cost; sub < min { // substitution
				min = sub
			}
			matrix[i][j] = min
		}
	}

	return matrix[len(s1)][len(s2)]
}

// Similarity scores how alike two strings are in [0,1], with 1 meaning
// identical (case-insensitive). Derived from edit distance over the
// longer length.
func Similarity(s1, s2 string) float64 {
	if s1 == "" && s2 == "" {
		return 1
	}
	longest := len(s1)
	if len(s2) > longest {
		longest = len(s2)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(s1, s2))/float64(longest)
}

// TokenSetRatio compares two names as token sets, so word order and
// repeated words do not matter: "Acme Robotics Inc" vs "Robotics Acme"
// score high. The score is the best similarity among the shared-token
// core and each side's full sorted token string.
func TokenSetRatio(s1, s2 string) float64 {
	t1 := tokenSet(s1)
	t2 := tokenSet(s2)
	if len(t1) == 0 || len(t2) == 0 {
		return 0
	}

	var shared, only1, only2 []string
	for tok := range t1 {
		if t2[tok] {
			shared = append(shared, tok)
		} else {
			only1 = append(only1, tok)
		}
	}
	for tok := range t2 {
		if !t1[tok] {
			only2 = append(only2, tok)
		}
	}
	sort.Strings(shared)
	sort.Strings(only1)
	sort.Strings(only2)

	core := strings.Join(shared, " ")
	full1 := strings.TrimSpace(core + " " + strings.Join(only1, " "))
	full2 := strings.TrimSpace(core + " " + strings.Join(only2, " "))

	best := Similarity(full1, full2)
	if core != "" {
		if s := Similarity(core, full1); s > best {
			best = s
		}
		if s := Similarity(core, full2); s > best {
			best = s
		}
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}
