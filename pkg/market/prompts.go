package market

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// summaryLimit caps the answer text shown to other providers in revision
// prompts, in bytes.
const summaryLimit = 1500

const roundSchema = `Respond with ONLY a JSON object, no prose around it:
{
  "answer": "your full answer",
  "confidence": 0.0 to 1.0,
  "key_claims": ["short factual assertions your answer rests on"],
  "assumptions": ["assumptions you had to make"],
  "citations": [{"title": "source title or null", "url": "source url or null"}]
}`

const arbiterSchema = `Respond with ONLY a JSON object, no prose around it:
{
  "final_answer": "the synthesized answer",
  "agreements": ["points all providers agree on"],
  "conflicts": [{"topic": "...", "claims": [{"provider": "...", "claim": "..."}], "resolution": "...", "status": "RESOLVED" or "UNRESOLVED", "confidence": 0.0 to 1.0}],
  "fact_table": [{"claim": "...", "support": ["provider", ...], "confidence": 0.0 to 1.0}],
  "next_questions": ["follow-up questions worth asking"],
  "overall_confidence": 0.0 to 1.0
}`

// BuildRoundOnePrompt builds the identical opening prompt every provider
// receives. Providers that failed in the previous round also receive it
// again, since they have no answer to revise.
func BuildRoundOnePrompt(question string) string {
	var b strings.Builder
	b.WriteString("Answer the following question as accurately as you can.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(roundSchema)
	return b.String()
}

// BuildRevisionPrompt builds the prompt for rounds after the first. The
// provider sees its own previous answer in full, a summary of every other
// provider's answer, and the contested topics, then decides whether to
// revise.
func BuildRevisionPrompt(question string, own *ProviderAnswer, others []ProviderAnswer, disagreements []Disagreement) string {
	var b strings.Builder
	b.WriteString("You previously answered the question below. Other independent models answered it too.\n")
	b.WriteString("Review their answers and revise yours if they change your mind; keep it if not.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nYour previous answer (confidence ")
	b.WriteString(formatConfidence(own.Confidence))
	b.WriteString("):\n")
	b.WriteString(own.Answer)
	if len(own.KeyClaims) > 0 {
		b.WriteString("\nYour key claims: ")
		b.WriteString(strings.Join(own.KeyClaims, "; "))
	}
	b.WriteString("\n")

	for _, other := range others {
		b.WriteString(fmt.Sprintf("\nAnswer from %s (confidence %s):\n", other.Provider, formatConfidence(other.Confidence)))
		b.WriteString(truncateBytes(other.Answer, summaryLimit))
		if len(other.KeyClaims) > 0 {
			b.WriteString("\nKey claims: ")
			b.WriteString(strings.Join(other.KeyClaims, "; "))
		}
		b.WriteString("\n")
	}

	if len(disagreements) > 0 {
		b.WriteString("\nContested topics:\n")
		for _, d := range disagreements {
			b.WriteString("- ")
			b.WriteString(d.Topic)
			b.WriteString(": ")
			parts := make([]string, 0, len(d.Claims))
			for _, c := range d.Claims {
				parts = append(parts, fmt.Sprintf("%s says %q", c.Provider, c.Claim))
			}
			b.WriteString(strings.Join(parts, "; "))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(roundSchema)
	return b.String()
}

// BuildArbiterPrompt builds the synthesis prompt from the final round's
// successful answers. Unlike revision prompts, the arbiter sees every
// answer in full.
func BuildArbiterPrompt(question string, answers []ProviderAnswer, rounds int) string {
	var b strings.Builder
	b.WriteString("You are the arbiter. Several independent models debated the question below ")
	b.WriteString(fmt.Sprintf("over %d round(s). Synthesize their final answers into one.\n\n", rounds))
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")

	for _, a := range answers {
		b.WriteString(fmt.Sprintf("\n--- %s (%s, confidence %s) ---\n", a.Provider, a.Model, formatConfidence(a.Confidence)))
		b.WriteString(a.Answer)
		if len(a.KeyClaims) > 0 {
			b.WriteString("\nKey claims: ")
			b.WriteString(strings.Join(a.KeyClaims, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nWeigh the claims, resolve conflicts where the evidence allows, and say what remains contested.\n\n")
	b.WriteString(arbiterSchema)
	return b.String()
}

func formatConfidence(c *float64) string {
	if c == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", *c)
}

// truncateBytes cuts s to at most limit bytes without splitting a UTF-8
// sequence, appending an ellipsis marker when anything was dropped.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
