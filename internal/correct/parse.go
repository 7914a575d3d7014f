package correct

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Assessment is the Round 2 structured verdict.
type Assessment struct {
	QualityScore     int      `json:"quality_score"`
	ImprovementLevel string   `json:"improvement_level"`
	MajorCorrections []string `json:"major_corrections"`
	Confidence       string   `json:"confidence"`
	NeedsReview      bool     `json:"needs_review"`
}

// assessmentSchema validates the parsed object before it is trusted. A
// response that parses as JSON but carries the wrong shape is still a
// failed round, never a silent zero-score success.
const assessmentSchema = `{
	"type": "object",
	"required": ["quality_score", "confidence", "needs_review"],
	"properties": {
		"quality_score": {"type": "integer", "minimum": 1, "maximum": 100},
		"improvement_level": {"enum": ["minimal", "moderate", "significant", "substantial"]},
		"major_corrections": {"type": "array", "items": {"type": "string"}},
		"confidence": {"enum": ["low", "medium", "high"]},
		"needs_review": {"type": "boolean"}
	}
}`

var compiledAssessmentSchema = jsonschema.MustCompileString("assessment.json", assessmentSchema)

// parseAssessment recovers an Assessment from model output. Lenient first
// (code fences, surrounding prose, trailing commas), then strict schema
// validation. A nil return with error means the round failed.
func parseAssessment(content string) (*Assessment, error) {
	raw, err := parseLooseJSON(content)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	if err := compiledAssessmentSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("assessment failed schema validation: %w", err)
	}

	var a Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	return &a, nil
}

// parseLooseJSON parses JSON from model output, with lightweight recovery
// for markdown code fences, surrounding prose, and trailing commas.
func parseLooseJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	// Trailing-comma repair on every candidate as a last resort.
	for _, c := range candidates {
		if repaired := stripTrailingCommas(c); repaired != c {
			candidates = append(candidates, repaired)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize model output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse JSON from model output")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(content string) string {
	return trailingCommaRe.ReplaceAllString(content, "$1")
}
