package costs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// pricingFile is the on-disk pricing document shape.
type pricingFile struct {
	Models map[string]ModelPricing `yaml:"models"`
}

// LoadPricingFile reads a pricing table from a YAML file:
//
//	models:
//	  gpt-4o:
//	    input_per_1k: 0.0025
//	    output_per_1k: 0.010
func LoadPricingFile(path string) (map[string]ModelPricing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}

	var doc pricingFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %q: %w", path, err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("pricing file %q contains no models", path)
	}

	for model, pricing := range doc.Models {
		if pricing.InputPer1K < 0 || pricing.OutputPer1K < 0 {
			return nil, fmt.Errorf("pricing file %q: negative rate for model %q", path, model)
		}
	}
	return doc.Models, nil
}

// DefaultPricing returns the built-in pricing table. Rates are USD per
// 1000 tokens. Operators override these with a pricing file; the prefix
// rule lets dated releases inherit their family entry.
func DefaultPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		// OpenAI
		"gpt-4o":       {InputPer1K: 0.0025, OutputPer1K: 0.010},
		"gpt-4o-mini":  {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gpt-4.1":      {InputPer1K: 0.002, OutputPer1K: 0.008},
		"gpt-4.1-mini": {InputPer1K: 0.0004, OutputPer1K: 0.0016},
		"o3-mini":      {InputPer1K: 0.0011, OutputPer1K: 0.0044},

		// Anthropic
		"claude-opus-4":     {InputPer1K: 0.015, OutputPer1K: 0.075},
		"claude-sonnet-4":   {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-haiku":  {InputPer1K: 0.0008, OutputPer1K: 0.004},

		// Google
		"gemini-2.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.010},
		"gemini-2.0-flash": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
		"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
		"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
	}
}
