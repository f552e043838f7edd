package quality

import "strings"

func scoreText(in Input) Assessment {
	clarity := scoreClarity(in.Content)
	relevance := scoreRelevance(in.Content, in.Description)
	tone := scoreTone(in.Content)
	completeness := scoreTextCompleteness(in.Content)

	return Assessment{
		TaskID: in.TaskID,
		Kind:   KindText,
		Metrics: []Metric{
			{Name: "clarity", Score: clarity},
			{Name: "relevance", Score: relevance},
			{Name: "tone", Score: tone},
			{Name: "completeness", Score: completeness},
		},
		Overall:         average(clarity, relevance, tone, completeness),
		Recommendations: recommendText(clarity, relevance, tone, completeness),
	}
}

// scoreClarity penalizes run-on sentences and excessive jargon density; a
// cheap proxy since no NLP library is bound for this dimension.
func scoreClarity(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	var totalWords int
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	avgWords := float64(totalWords) / float64(len(sentences))
	// Sentences under ~25 words average score well; longer average sentences
	// are penalized linearly.
	if avgWords <= 25 {
		return 1.0
	}
	score := 1.0 - (avgWords-25)/50
	return clamp01(score)
}

// scoreRelevance measures term overlap between the content and the task
// description it was meant to address.
func scoreRelevance(text, description string) float64 {
	if strings.TrimSpace(description) == "" {
		return 0.5
	}
	descTerms := uniqueWords(description)
	if len(descTerms) == 0 {
		return 0.5
	}
	contentWords := wordSet(text)
	var hits int
	for term := range descTerms {
		if contentWords[term] {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(descTerms)))
}

func scoreTone(text string) float64 {
	lower := strings.ToLower(text)
	score := 1.0
	for _, harsh := range []string{"stupid", "idiot", "shut up", "useless"} {
		if strings.Contains(lower, harsh) {
			score -= 0.3
		}
	}
	if strings.Count(text, "!") > 3 {
		score -= 0.1
	}
	return clamp01(score)
}

func scoreTextCompleteness(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words == 0:
		return 0
	case words < 10:
		return 0.3
	case words < 40:
		return 0.7
	default:
		return 1.0
	}
}

func recommendText(clarity, relevance, tone, completeness float64) []Recommendation {
	var hints []string
	if clarity < 0.6 {
		hints = append(hints, "shorten sentences for readability")
	}
	if relevance < 0.5 {
		hints = append(hints, "address more of the task description's key terms")
	}
	if tone < 0.8 {
		hints = append(hints, "moderate tone")
	}
	if completeness < 0.6 {
		hints = append(hints, "expand with more substantive content")
	}
	return rank(hints)
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var out []string
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(w, ".,!?;:\"'()")] = true
	}
	return set
}

func uniqueWords(text string) map[string]bool {
	set := wordSet(text)
	for _, stop := range []string{"the", "a", "an", "to", "of", "and", "or", "is", "in", "for", "on"} {
		delete(set, stop)
	}
	return set
}
