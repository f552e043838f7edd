package quality

import (
	"go/parser"
	"go/scanner"
	"go/token"
	"regexp"
	"strings"
)

// dangerousGoCalls flags obvious dangerous-function usage for the surface
// security dimension (spec.md §4.9 "surface security").
var dangerousGoCalls = regexp.MustCompile(`\b(os/exec\.Command|exec\.Command|unsafe\.Pointer|sql\.Query\(|fmt\.Sprintf\(\s*"[^"]*%s[^"]*"\s*,.*\)\s*\)\s*\)`)

func scoreCode(in Input) Assessment {
	a := Assessment{TaskID: in.TaskID, Kind: KindCode}

	if strings.ToLower(in.Language) != "go" && in.Language != "" {
		return Assessment{
			TaskID:        in.TaskID,
			Kind:          KindCode,
			Missing:       true,
			MissingReason: "no parser available for language " + in.Language,
		}
	}

	validity := scoreSyntacticValidity(in.Content)
	structural := scoreStructuralSoundness(in.Content)
	docs := scoreDocumentationDensity(in.Content)
	security := scoreSurfaceSecurity(in.Content)

	a.Metrics = []Metric{
		{Name: "syntactic_validity", Score: validity},
		{Name: "structural_soundness", Score: structural},
		{Name: "documentation_density", Score: docs},
		{Name: "surface_security", Score: security},
	}
	a.Overall = average(validity, structural, docs, security)
	a.Recommendations = recommendCode(validity, structural, docs, security)
	return a
}

// scoreSyntacticValidity reports whether the code parses, using go/parser
// with go/scanner error recovery to produce a graded score rather than a
// boolean: fewer scanner/parser errors relative to content size scores
// higher (spec.md §4.9 "does the code parse?").
func scoreSyntacticValidity(src string) float64 {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "", src, parser.AllErrors)
	if err == nil {
		return 1.0
	}

	var errCount int
	if list, ok := err.(scanner.ErrorList); ok {
		errCount = len(list)
	} else {
		errCount = 1
	}
	lines := strings.Count(src, "\n") + 1
	penalty := float64(errCount) / float64(lines)
	score := 1.0 - penalty*4
	if score < 0 {
		score = 0
	}
	return score
}

func scoreStructuralSoundness(src string) float64 {
	score := 0.5
	if strings.Contains(src, "if err != nil") || strings.Contains(src, "except ") || strings.Contains(src, "catch ") {
		score += 0.3
	}
	antiPatterns := []string{"panic(", "os.Exit(", "goto "}
	for _, p := range antiPatterns {
		if strings.Contains(src, p) {
			score -= 0.1
		}
	}
	return clamp01(score)
}

func scoreDocumentationDensity(src string) float64 {
	lines := strings.Split(src, "\n")
	if len(lines) == 0 {
		return 0
	}
	var commentLines int
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "*") {
			commentLines++
		}
	}
	ratio := float64(commentLines) / float64(len(lines))
	// A healthy ratio is roughly 10-30%; scale so 0.2 maps to ~1.0.
	score := ratio / 0.2
	return clamp01(score)
}

func scoreSurfaceSecurity(src string) float64 {
	if dangerousGoCalls.MatchString(src) {
		return 0.2
	}
	return 1.0
}

func recommendCode(validity, structural, docs, security float64) []Recommendation {
	var hints []string
	if validity < 0.8 {
		hints = append(hints, "fix syntax errors so the code parses cleanly")
	}
	if structural < 0.5 {
		hints = append(hints, "add error handling around fallible calls")
	}
	if docs < 0.5 {
		hints = append(hints, "add comments or docstrings for exported identifiers")
	}
	if security < 0.8 {
		hints = append(hints, "review flagged calls for unsafe or injectable usage")
	}
	return rank(hints)
}
