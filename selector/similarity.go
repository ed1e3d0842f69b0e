package selector

import "strings"

// SimilarityFunc scores how close two capability tags are, in [0,1]. The
// matching strategy is pluggable so it can evolve (string distance, token
// overlap, embeddings) without touching the selection algorithm.
type SimilarityFunc func(tagA, tagB string) float64

// DefaultSimilarityThreshold is the minimum score accepted by the semantic
// fallback stage.
const DefaultSimilarityThreshold = 0.7

// TokenOverlap scores two snake_case capability tags by token containment:
// |A∩B| / min(|A|,|B|) over the underscore-separated word sets. A tag fully
// contained in the other scores 1 ("compliance" vs "compliance_check"),
// disjoint tags score 0, identical tags score 1.
func TokenOverlap(tagA, tagB string) float64 {
	if strings.EqualFold(tagA, tagB) {
		return 1.0
	}

	a := tokenSet(tagA)
	b := tokenSet(tagB)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	overlap := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			overlap++
		}
	}
	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	return float64(overlap) / float64(min)
}

func tokenSet(tag string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Split(strings.ToLower(tag), "_") {
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// bestScore returns the highest similarity between tag and any of the
// candidate capabilities.
func bestScore(sim SimilarityFunc, tag string, capabilities []string) float64 {
	best := 0.0
	for _, c := range capabilities {
		if s := sim(tag, c); s > best {
			best = s
		}
	}
	return best
}
