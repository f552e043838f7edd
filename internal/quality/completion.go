package quality

import "strings"

func scoreCompletion(in Input) Assessment {
	completeness := scoreCompletionCompleteness(in.Content, in.Description)
	accuracy := scoreAccuracyProxy(in.Content)
	specificity := scoreSpecificity(in.Content)
	actionability := scoreActionability(in.Content)

	return Assessment{
		TaskID: in.TaskID,
		Kind:   KindCompletion,
		Metrics: []Metric{
			{Name: "completeness", Score: completeness},
			{Name: "accuracy_proxy", Score: accuracy},
			{Name: "specificity", Score: specificity},
			{Name: "actionability", Score: actionability},
		},
		Overall:         average(completeness, accuracy, specificity, actionability),
		Recommendations: recommendCompletion(completeness, accuracy, specificity, actionability),
	}
}

// scoreCompletionCompleteness checks whether the result addresses every
// noun phrase-ish term mentioned in the task description.
func scoreCompletionCompleteness(content, description string) float64 {
	return scoreRelevance(content, description)
}

// scoreAccuracyProxy has no ground truth to check against, so it scores the
// presence of hedging/uncertainty markers as an inverse accuracy signal —
// a proxy, not a fact check (spec.md §4.9 calls this out explicitly as a
// proxy dimension).
func scoreAccuracyProxy(content string) float64 {
	lower := strings.ToLower(content)
	score := 1.0
	for _, hedge := range []string{"i think", "maybe", "not sure", "i guess", "probably wrong"} {
		if strings.Contains(lower, hedge) {
			score -= 0.15
		}
	}
	return clamp01(score)
}

func scoreSpecificity(content string) float64 {
	var digits, words int
	for _, w := range strings.Fields(content) {
		words++
		for _, r := range w {
			if r >= '0' && r <= '9' {
				digits++
				break
			}
		}
	}
	if words == 0 {
		return 0
	}
	ratio := float64(digits) / float64(words)
	score := 0.5 + ratio*5
	return clamp01(score)
}

func scoreActionability(content string) float64 {
	lower := strings.ToLower(content)
	markers := []string{"step 1", "1.", "next,", "then,", "run ", "execute ", "- [ ]"}
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return 1.0
		}
	}
	return 0.4
}

func recommendCompletion(completeness, accuracy, specificity, actionability float64) []Recommendation {
	var hints []string
	if completeness < 0.6 {
		hints = append(hints, "cover more of the requested scope")
	}
	if accuracy < 0.7 {
		hints = append(hints, "remove hedging language or verify claims")
	}
	if specificity < 0.5 {
		hints = append(hints, "include concrete values or references")
	}
	if actionability < 0.6 {
		hints = append(hints, "state next steps explicitly")
	}
	return rank(hints)
}
