package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// RoundAnswer is the JSON shape providers are instructed to return in
// every round.
type RoundAnswer struct {
	Answer      string     `json:"answer"`
	Confidence  *float64   `json:"confidence"`
	KeyClaims   []string   `json:"key_claims"`
	Assumptions []string   `json:"assumptions"`
	Citations   []Citation `json:"citations"`
}

// ArbiterAnswer is the JSON shape the arbiter is instructed to return.
type ArbiterAnswer struct {
	FinalAnswer       string     `json:"final_answer"`
	Agreements        []string   `json:"agreements"`
	Conflicts         []Conflict `json:"conflicts"`
	FactTable         []FactRow  `json:"fact_table"`
	NextQuestions     []string   `json:"next_questions"`
	OverallConfidence *float64   `json:"overall_confidence"`
}

// ErrMissingAnswer is returned when the payload parsed as JSON but lacks
// the required answer text.
var ErrMissingAnswer = errors.New("payload lacks answer text")

var (
	fencedJSONRe    = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	// Line comments, but not the "//" inside URLs like https://.
	lineCommentRe = regexp.MustCompile(`(?m)(^|[^:])//.*$`)
)

// recoveryCandidates returns the content plus progressively repaired
// variants: first fenced ```json block, then trailing commas stripped,
// then line comments stripped. Each repair builds on the previous one.
func recoveryCandidates(content string) []string {
	cand := strings.TrimSpace(content)
	out := []string{cand}

	if m := fencedJSONRe.FindStringSubmatch(cand); m != nil {
		cand = strings.TrimSpace(m[1])
		out = append(out, cand)
	}

	cand = trailingCommaRe.ReplaceAllString(cand, "$1")
	out = append(out, cand)

	cand = lineCommentRe.ReplaceAllString(cand, "$1")
	out = append(out, cand)

	return out
}

// ParseRoundAnswer parses model output against the round schema. When the
// content is not valid JSON it applies the recovery heuristics in order
// and takes the first variant that parses. A payload without answer text
// fails with ErrMissingAnswer so the caller can fall back to the raw
// content.
func ParseRoundAnswer(content string) (*RoundAnswer, error) {
	var lastErr error
	for _, cand := range recoveryCandidates(content) {
		var parsed RoundAnswer
		if err := json.Unmarshal([]byte(cand), &parsed); err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(parsed.Answer) == "" {
			lastErr = ErrMissingAnswer
			continue
		}
		normalizeRoundAnswer(&parsed)
		return &parsed, nil
	}
	return nil, fmt.Errorf("round answer did not parse: %w", lastErr)
}

// ParseArbiterAnswer parses model output against the arbiter schema,
// applying the same recovery heuristics. A payload without final_answer
// counts as a failed attempt per the retry contract.
func ParseArbiterAnswer(content string) (*ArbiterAnswer, error) {
	var lastErr error
	for _, cand := range recoveryCandidates(content) {
		var wire arbiterWire
		if err := json.Unmarshal([]byte(cand), &wire); err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(wire.FinalAnswer) == "" {
			lastErr = ErrMissingAnswer
			continue
		}
		return wire.toAnswer(), nil
	}
	return nil, fmt.Errorf("arbiter answer did not parse: %w", lastErr)
}

// arbiterWire tolerates the {items: [...]} wrapper some models emit for
// conflicts and fact_table.
type arbiterWire struct {
	FinalAnswer       string       `json:"final_answer"`
	Agreements        []string     `json:"agreements"`
	Conflicts         conflictList `json:"conflicts"`
	FactTable         factList     `json:"fact_table"`
	NextQuestions     []string     `json:"next_questions"`
	OverallConfidence *float64     `json:"overall_confidence"`
}

func (w *arbiterWire) toAnswer() *ArbiterAnswer {
	a := &ArbiterAnswer{
		FinalAnswer:       strings.TrimSpace(w.FinalAnswer),
		Agreements:        w.Agreements,
		Conflicts:         []Conflict(w.Conflicts),
		FactTable:         []FactRow(w.FactTable),
		NextQuestions:     w.NextQuestions,
		OverallConfidence: w.OverallConfidence,
	}
	if a.OverallConfidence != nil {
		clamped := clampConfidence(*a.OverallConfidence)
		a.OverallConfidence = &clamped
	}
	return a
}

// conflictList decodes either a JSON array or an {items: [...]} object.
type conflictList []Conflict

func (l *conflictList) UnmarshalJSON(data []byte) error {
	var arr []Conflict
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var wrapped struct {
		Items []Conflict `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Items
	return nil
}

// factList decodes either a JSON array or an {items: [...]} object.
type factList []FactRow

func (l *factList) UnmarshalJSON(data []byte) error {
	var arr []FactRow
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var wrapped struct {
		Items []FactRow `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Items
	return nil
}

// normalizeRoundAnswer trims the answer, drops blank claims and
// assumptions, and clamps confidence into [0,1].
func normalizeRoundAnswer(a *RoundAnswer) {
	a.Answer = strings.TrimSpace(a.Answer)
	a.KeyClaims = dropBlank(a.KeyClaims)
	a.Assumptions = dropBlank(a.Assumptions)
	if a.Confidence != nil {
		clamped := clampConfidence(*a.Confidence)
		a.Confidence = &clamped
	}
}

func dropBlank(in []string) []string {
	if in == nil {
		return nil
	}
	out := in[:0]
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
