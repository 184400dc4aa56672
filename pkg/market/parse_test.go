package market

import (
	"errors"
	"testing"
)

func TestParseRoundAnswer(t *testing.T) {
	t.Run("clean payload", func(t *testing.T) {
		got, err := ParseRoundAnswer(`{
			"answer": "Paris",
			"confidence": 0.9,
			"key_claims": ["Paris is the capital of France"],
			"assumptions": ["the question means the country France"],
			"citations": [{"title": "CIA World Factbook", "url": "https://example.com/factbook"}]
		}`)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if got.Answer != "Paris" {
			t.Errorf("Answer = %q", got.Answer)
		}
		if got.Confidence == nil || *got.Confidence != 0.9 {
			t.Errorf("Confidence = %v", got.Confidence)
		}
		if len(got.KeyClaims) != 1 || len(got.Assumptions) != 1 || len(got.Citations) != 1 {
			t.Errorf("unexpected shape: %+v", got)
		}
	})

	t.Run("fenced block", func(t *testing.T) {
		content := "Here is my answer:\n```json\n{\"answer\": \"42\", \"confidence\": 0.8}\n```\nLet me know if you need more."
		got, err := ParseRoundAnswer(content)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if got.Answer != "42" {
			t.Errorf("Answer = %q", got.Answer)
		}
	})

	t.Run("trailing commas", func(t *testing.T) {
		got, err := ParseRoundAnswer(`{"answer": "42", "key_claims": ["a", "b",],}`)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if len(got.KeyClaims) != 2 {
			t.Errorf("KeyClaims = %v", got.KeyClaims)
		}
	})

	t.Run("line comments stripped but URLs survive", func(t *testing.T) {
		content := `{
			"answer": "42", // the model likes to annotate
			"citations": [{"title": "ref", "url": "https://example.com/a"}]
		}`
		got, err := ParseRoundAnswer(content)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if len(got.Citations) != 1 || got.Citations[0].URL != "https://example.com/a" {
			t.Errorf("Citations = %+v", got.Citations)
		}
	})

	t.Run("fenced block with trailing commas", func(t *testing.T) {
		content := "```json\n{\"answer\": \"42\", \"assumptions\": [\"x\",],}\n```"
		got, err := ParseRoundAnswer(content)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if got.Answer != "42" {
			t.Errorf("Answer = %q", got.Answer)
		}
	})

	t.Run("confidence clamped", func(t *testing.T) {
		got, err := ParseRoundAnswer(`{"answer": "42", "confidence": 1.7}`)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if got.Confidence == nil || *got.Confidence != 1.0 {
			t.Errorf("Confidence = %v, want clamp to 1.0", got.Confidence)
		}

		got, err = ParseRoundAnswer(`{"answer": "42", "confidence": -0.2}`)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if got.Confidence == nil || *got.Confidence != 0.0 {
			t.Errorf("Confidence = %v, want clamp to 0.0", got.Confidence)
		}
	})

	t.Run("absent confidence stays nil", func(t *testing.T) {
		got, err := ParseRoundAnswer(`{"answer": "42"}`)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if got.Confidence != nil {
			t.Errorf("Confidence = %v, want nil", got.Confidence)
		}
	})

	t.Run("blank claims dropped", func(t *testing.T) {
		got, err := ParseRoundAnswer(`{"answer": "42", "key_claims": ["  ", "kept", ""]}`)
		if err != nil {
			t.Fatalf("ParseRoundAnswer: %v", err)
		}
		if len(got.KeyClaims) != 1 || got.KeyClaims[0] != "kept" {
			t.Errorf("KeyClaims = %v", got.KeyClaims)
		}
	})

	t.Run("missing answer", func(t *testing.T) {
		_, err := ParseRoundAnswer(`{"confidence": 0.9}`)
		if !errors.Is(err, ErrMissingAnswer) {
			t.Errorf("err = %v, want ErrMissingAnswer", err)
		}
	})

	t.Run("blank answer", func(t *testing.T) {
		_, err := ParseRoundAnswer(`{"answer": "   "}`)
		if !errors.Is(err, ErrMissingAnswer) {
			t.Errorf("err = %v, want ErrMissingAnswer", err)
		}
	})

	t.Run("prose is not recoverable", func(t *testing.T) {
		_, err := ParseRoundAnswer("The capital of France is Paris.")
		if err == nil {
			t.Error("expected an error for non-JSON content")
		}
	})
}

func TestParseArbiterAnswer(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		got, err := ParseArbiterAnswer(`{
			"final_answer": "Paris is the capital.",
			"agreements": ["all providers named Paris"],
			"conflicts": [{
				"topic": "population",
				"claims": [
					{"provider": "openai", "claim": "2.1 million"},
					{"provider": "gemini", "claim": "2.2 million"}
				],
				"resolution": "latest census says 2.1 million",
				"status": "RESOLVED",
				"confidence": 0.8
			}],
			"fact_table": [{"claim": "Paris is the capital", "support": ["openai", "gemini"], "confidence": 0.95}],
			"next_questions": ["what is the metro population?"],
			"overall_confidence": 0.9
		}`)
		if err != nil {
			t.Fatalf("ParseArbiterAnswer: %v", err)
		}
		if got.FinalAnswer != "Paris is the capital." {
			t.Errorf("FinalAnswer = %q", got.FinalAnswer)
		}
		if len(got.Conflicts) != 1 || got.Conflicts[0].Status != ConflictResolved {
			t.Errorf("Conflicts = %+v", got.Conflicts)
		}
		if len(got.Conflicts[0].Claims) != 2 {
			t.Errorf("Claims = %+v", got.Conflicts[0].Claims)
		}
		if len(got.FactTable) != 1 || len(got.FactTable[0].Support) != 2 {
			t.Errorf("FactTable = %+v", got.FactTable)
		}
		if got.OverallConfidence == nil || *got.OverallConfidence != 0.9 {
			t.Errorf("OverallConfidence = %v", got.OverallConfidence)
		}
	})

	t.Run("items wrapper on conflicts and fact_table", func(t *testing.T) {
		got, err := ParseArbiterAnswer(`{
			"final_answer": "done",
			"conflicts": {"items": [{"topic": "t", "claims": [], "resolution": "", "status": "UNRESOLVED", "confidence": 0.5}]},
			"fact_table": {"items": [{"claim": "c", "support": ["openai"], "confidence": 0.7}]}
		}`)
		if err != nil {
			t.Fatalf("ParseArbiterAnswer: %v", err)
		}
		if len(got.Conflicts) != 1 || got.Conflicts[0].Topic != "t" {
			t.Errorf("Conflicts = %+v", got.Conflicts)
		}
		if len(got.FactTable) != 1 || got.FactTable[0].Claim != "c" {
			t.Errorf("FactTable = %+v", got.FactTable)
		}
	})

	t.Run("fenced block", func(t *testing.T) {
		got, err := ParseArbiterAnswer("```json\n{\"final_answer\": \"done\"}\n```")
		if err != nil {
			t.Fatalf("ParseArbiterAnswer: %v", err)
		}
		if got.FinalAnswer != "done" {
			t.Errorf("FinalAnswer = %q", got.FinalAnswer)
		}
	})

	t.Run("overall confidence clamped", func(t *testing.T) {
		got, err := ParseArbiterAnswer(`{"final_answer": "done", "overall_confidence": 3.0}`)
		if err != nil {
			t.Fatalf("ParseArbiterAnswer: %v", err)
		}
		if got.OverallConfidence == nil || *got.OverallConfidence != 1.0 {
			t.Errorf("OverallConfidence = %v, want clamp to 1.0", got.OverallConfidence)
		}
	})

	t.Run("missing final answer", func(t *testing.T) {
		_, err := ParseArbiterAnswer(`{"agreements": ["x"]}`)
		if !errors.Is(err, ErrMissingAnswer) {
			t.Errorf("err = %v, want ErrMissingAnswer", err)
		}
	})
}
