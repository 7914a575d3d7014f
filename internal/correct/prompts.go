package correct

import "fmt"

// correctionPrompt builds the Round 1 instruction set. The model may only
// repair OCR artifacts; semantic content (dates, names, citations, legal
// meaning) must pass through untouched, and uncertain spans are marked
// rather than silently resolved.
func correctionPrompt(documentType, text string) string {
	return fmt.Sprintf(`You are an expert OCR correction specialist for %s text.

Fix ONLY mechanical OCR errors in the text below:
- character substitutions (e.g. "rn" read as "m", "0" read as "O", "1" read as "l")
- broken or merged words from bad character spacing
- spurious or missing punctuation caused by scan artifacts
- garbled whitespace and line breaks

You must NOT:
- change any date, name, number, citation, or legal term
- rephrase, summarize, modernize, or "improve" the wording
- add or remove content
- resolve ambiguity by guessing: if a span cannot be confidently repaired,
  keep it as-is and mark it like [UNCERTAIN: reason]

Return ONLY the corrected text. No preamble, no commentary.

Text to correct:
%s`, documentType, text)
}

// assessmentPrompt builds the Round 2 request. Both texts are sent so the
// model judges the correction, not the page in isolation.
func assessmentPrompt(original, corrected string) string {
	return fmt.Sprintf(`Compare the original OCR text with its corrected version and assess the correction quality.

Respond with a JSON object only, no other text:
{
  "quality_score": <integer 1-100, quality of the corrected text>,
  "improvement_level": "<minimal|moderate|significant|substantial>",
  "major_corrections": ["<short description of each notable fix>"],
  "confidence": "<low|medium|high>",
  "needs_review": <true if a human should verify the correction>
}

Set needs_review to true if any correction could have altered meaning, if
[UNCERTAIN: ...] markers are present, or if the text remains hard to read.

ORIGINAL TEXT:
%s

CORRECTED TEXT:
%s`, original, corrected)
}
