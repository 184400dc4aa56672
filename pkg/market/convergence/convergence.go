package convergence

import (
	"regexp"
	"strings"

	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/market"
)

// maxDisagreements caps how many contested topics feed the next round's
// revision prompts.
const maxDisagreements = 5

// topicOverlapThreshold is the word-level Jaccard similarity above which
// two differing claims are considered to be about the same topic.
const topicOverlapThreshold = 0.5

// Checker decides whether a round's answers have converged. It is
// stateless; thresholds come from configuration.
type Checker struct {
	confidenceThreshold float64
	overlapThreshold    float64
}

// New creates a checker with the configured thresholds.
func New(cfg config.ConvergenceConfig) *Checker {
	return &Checker{
		confidenceThreshold: cfg.ConfidenceDelta,
		overlapThreshold:    cfg.ClaimOverlap,
	}
}

// Evaluate measures one round. Converged means the confidences sit close
// together AND the claim sets mostly agree.
func (c *Checker) Evaluate(answers []market.ProviderAnswer) market.Assessment {
	delta := ConfidenceDelta(answers)
	overlap := ClaimOverlap(answers)

	return market.Assessment{
		ConfidenceDelta: delta,
		ClaimOverlap:    overlap,
		Converged:       delta <= c.confidenceThreshold && overlap >= c.overlapThreshold,
		Disagreements:   Disagreements(answers),
	}
}

// ConfidenceDelta returns the spread between the highest and lowest
// non-null confidence. No confidences at all means maximum spread (1.0);
// a single confidence has no spread (0.0).
func ConfidenceDelta(answers []market.ProviderAnswer) float64 {
	var values []float64
	for _, a := range answers {
		if a.Confidence != nil {
			values = append(values, *a.Confidence)
		}
	}

	switch len(values) {
	case 0:
		return 1.0
	case 1:
		return 0.0
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}

// ClaimOverlap returns the mean Jaccard similarity over every ordered
// pair of distinct claim sets. Only answers with non-empty key_claims
// contribute a set. No sets means no overlap (0.0); a single set cannot
// disagree with anything (1.0).
func ClaimOverlap(answers []market.ProviderAnswer) float64 {
	var sets []map[string]struct{}
	for _, a := range answers {
		if len(a.KeyClaims) == 0 {
			continue
		}
		sets = append(sets, claimSet(a.KeyClaims))
	}

	switch len(sets) {
	case 0:
		return 0.0
	case 1:
		return 1.0
	}

	var sum float64
	var pairs int
	for i := range sets {
		for j := range sets {
			if i == j {
				continue
			}
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// Disagreements extracts contested topics: claims from different
// providers that differ but share enough words to be about the same
// thing. At most maxDisagreements buckets are returned, in discovery
// order.
//
// Claims whose normalized forms are identical are agreements and never
// flagged. Claims with no word overlap are treated as different topics
// rather than disagreements.
func Disagreements(answers []market.ProviderAnswer) []market.Disagreement {
	type entry struct {
		provider string
		original string
		norm     string
		words    map[string]struct{}
	}

	var entries []entry
	for _, a := range answers {
		for _, claim := range a.KeyClaims {
			norm := NormalizeClaim(claim)
			if norm == "" {
				continue
			}
			entries = append(entries, entry{
				provider: a.Provider,
				original: claim,
				norm:     norm,
				words:    wordSet(norm),
			})
		}
	}

	var out []market.Disagreement
	buckets := make(map[string]int) // topic -> index into out

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.provider == b.provider || a.norm == b.norm {
				continue
			}
			shared := sharedWords(a.norm, b.words)
			if len(shared) == 0 {
				continue
			}
			if jaccard(a.words, b.words) < topicOverlapThreshold {
				continue
			}

			topic := strings.Join(shared, " ")
			idx, seen := buckets[topic]
			if !seen {
				if len(out) >= maxDisagreements {
					continue
				}
				out = append(out, market.Disagreement{Topic: topic})
				idx = len(out) - 1
				buckets[topic] = idx
			}
			out[idx].Claims = appendClaim(out[idx].Claims, a.provider, a.original)
			out[idx].Claims = appendClaim(out[idx].Claims, b.provider, b.original)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9_\s]+`)
var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeClaim lowercases a claim, drops everything that is not a word
// or space character, and collapses whitespace. Two claims with the same
// normalized form count as the same claim.
func NormalizeClaim(claim string) string {
	s := strings.ToLower(claim)
	s = nonWordRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func claimSet(claims []string) map[string]struct{} {
	set := make(map[string]struct{}, len(claims))
	for _, c := range claims {
		if norm := NormalizeClaim(c); norm != "" {
			set[norm] = struct{}{}
		}
	}
	return set
}

// jaccard returns |a∩b| / |a∪b|, with an empty union counting as full
// similarity.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(norm string) map[string]struct{} {
	words := strings.Fields(norm)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// sharedWords returns the words of norm that also appear in other,
// preserving norm's word order so topics read naturally.
func sharedWords(norm string, other map[string]struct{}) []string {
	var shared []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(norm) {
		if _, ok := other[w]; !ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		shared = append(shared, w)
	}
	return shared
}

func appendClaim(claims []market.ConflictClaim, provider, claim string) []market.ConflictClaim {
	for _, c := range claims {
		if c.Provider == provider && c.Claim == claim {
			return claims
		}
	}
	return append(claims, market.ConflictClaim{Provider: provider, Claim: claim})
}
