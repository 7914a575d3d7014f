package correct

import "testing"

const validAssessment = `{
	"quality_score": 85,
	"improvement_level": "moderate",
	"major_corrections": ["fixed rn/m confusion", "repaired broken dates"],
	"confidence": "high",
	"needs_review": false
}`

func TestParseAssessmentCleanJSON(t *testing.T) {
	a, err := parseAssessment(validAssessment)
	if err != nil {
		t.Fatalf("parseAssessment() error = %v", err)
	}
	if a.QualityScore != 85 {
		t.Errorf("QualityScore = %d, want 85", a.QualityScore)
	}
	if a.ImprovementLevel != "moderate" {
		t.Errorf("ImprovementLevel = %q, want moderate", a.ImprovementLevel)
	}
	if len(a.MajorCorrections) != 2 {
		t.Errorf("MajorCorrections = %v, want 2 items", a.MajorCorrections)
	}
	if a.Confidence != "high" || a.NeedsReview {
		t.Errorf("confidence/needs_review = %q/%v", a.Confidence, a.NeedsReview)
	}
}

func TestParseAssessmentLenientRecovery(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"code fence", "```json\n" + validAssessment + "\n```"},
		{"fence without language", "```\n" + validAssessment + "\n```"},
		{"surrounding prose", "Here is my assessment:\n" + validAssessment + "\nLet me know if you need more."},
		{"trailing comma", `{"quality_score": 85, "confidence": "high", "needs_review": false,}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAssessment(tt.content)
			if err != nil {
				t.Fatalf("parseAssessment() error = %v", err)
			}
			if a.QualityScore != 85 {
				t.Errorf("QualityScore = %d, want 85", a.QualityScore)
			}
		})
	}
}

func TestParseAssessmentFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"plain prose", "The correction looks good to me overall."},
		{"truncated json", `{"quality_score": 85, "confidence": "hi`},
		{"score out of range", `{"quality_score": 0, "confidence": "high", "needs_review": false}`},
		{"bad confidence enum", `{"quality_score": 85, "confidence": "very high", "needs_review": false}`},
		{"missing required fields", `{"quality_score": 85}`},
		{"wrong types", `{"quality_score": "eighty", "confidence": "high", "needs_review": false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseAssessment(tt.content); err == nil {
				t.Errorf("parseAssessment(%q) should fail", tt.content)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := stripCodeFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("stripCodeFences() = %q", got)
	}
	if got := stripCodeFences("no fence here"); got != "" {
		t.Errorf("stripCodeFences(plain) = %q, want empty", got)
	}
}

func TestExtractJSONCandidate(t *testing.T) {
	got := extractJSONCandidate(`leading text {"a": 1} trailing text`)
	if got != `{"a": 1}` {
		t.Errorf("extractJSONCandidate() = %q", got)
	}
	if got := extractJSONCandidate("nothing structured"); got != "" {
		t.Errorf("extractJSONCandidate(prose) = %q, want empty", got)
	}
}
