package garak

import "strings"

// displayNames maps known garak probe families to human-readable labels.
// Unlisted families fall back to title-cased raw names.
var displayNames = map[string]string{
	"atkgen":               "Attack Generation",
	"av_spam_scanning":     "AV & Spam Scanning",
	"continuation":         "Continuation",
	"dan":                  "DAN (Do Anything Now)",
	"donotanswer":          "Do Not Answer",
	"encoding":             "Encoding Injection",
	"glitch":               "Glitch Tokens",
	"goodside":             "Goodside",
	"grandma":              "Grandma",
	"knownbadsignatures":   "Known Bad Signatures",
	"latentinjection":      "Latent Injection",
	"leakreplay":           "Data Leak Replay",
	"lmrc":                 "Language Model Risk Cards",
	"malwaregen":           "Malware Generation",
	"misleading":           "Misleading Claims",
	"packagehallucination": "Package Hallucination",
	"promptinject":         "Prompt Injection",
	"realtoxicityprompts":  "Real Toxicity Prompts",
	"snowball":             "Snowball Hallucination",
	"suffix":               "Adversarial Suffix",
	"tap":                  "Tree of Attacks with Pruning",
	"topic":                "Topic Probing",
	"visual_jailbreak":     "Visual Jailbreak",
	"xss":                  "Cross-Site Scripting",
	"unknown":              "Unknown",
}

// CategoryOf returns the first dot-delimited segment of a probe classname,
// or "unknown" when the classname is empty.
func CategoryOf(probeClassname string) string {
	name, _, _ := strings.Cut(probeClassname, ".")
	if name == "" {
		return "unknown"
	}
	return name
}

// DisplayName resolves a category to its dashboard label.
func DisplayName(category string) string {
	if label, ok := displayNames[category]; ok {
		return label
	}
	return titleCase(category)
}

func titleCase(raw string) string {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// DefconGrade bands a vulnerability rate into a 1 (worst) to 5 (best)
// severity grade. Thresholds are inclusive lower bounds.
func DefconGrade(vulnerabilityRate float64) int {
	switch {
	case vulnerabilityRate >= 40:
		return 1
	case vulnerabilityRate >= 20:
		return 2
	case vulnerabilityRate >= 5:
		return 3
	case vulnerabilityRate >= 1:
		return 4
	default:
		return 5
	}
}
