package extract

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nameRe  = regexp.MustCompile(`(?i)\b(?:my name is|i am|i'm|this is)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	// "at Acme", "work for Acme Corp", "from Acme"
	companyRe = regexp.MustCompile(`(?i)\b(?:work (?:at|for)|i'm (?:at|with)|from|at)\s+([A-Z][A-Za-z0-9&.\- ]{1,40}?)(?:[.,!?]|$)`)
)

// Keyword lexicons for the deterministic path.
var (
	industryLexicon = map[string]string{
		"healthcare": "healthcare", "hospital": "healthcare", "clinic": "healthcare",
		"fintech": "finance", "bank": "finance", "insurance": "finance",
		"ecommerce": "ecommerce", "e-commerce": "ecommerce", "retail": "ecommerce",
		"saas": "software", "software": "software", "startup": "software",
		"real estate": "real_estate", "logistics": "logistics", "manufacturing": "manufacturing",
		"education": "education", "school": "education",
	}
	toolLexicon = []string{
		"salesforce", "hubspot", "zendesk", "intercom", "slack", "notion",
		"zapier", "excel", "spreadsheet", "whatsapp business",
	}
	painLexicon = map[string]string{
		"too slow":          "slow processes",
		"manual":            "manual work",
		"overwhelmed":       "team overload",
		"losing customers":  "customer churn",
		"missed messages":   "missed messages",
		"response time":     "slow response times",
		"can't keep up":     "volume overload",
		"too many inquir":   "volume overload",
		"expensive":         "high costs",
		"no visibility":     "lack of visibility",
	}
	goalLexicon = map[string]string{
		"automate":       "automation",
		"scale":          "scaling operations",
		"grow":           "growth",
		"save time":      "time savings",
		"reduce cost":    "cost reduction",
		"improve":        "process improvement",
		"faster respons": "faster responses",
	}
)

// fallbackExtract is the deterministic extractor used when the LLM path
// fails. Everything it returns carries heuristic confidence.
func fallbackExtract(utterance string) *Extraction {
	ext := &Extraction{Confidence: ConfidenceHeuristic}
	lower := strings.ToLower(utterance)

	if m := emailRe.FindString(utterance); m != "" {
		ext.Email = strings.ToLower(m)
	}
	if m := nameRe.FindStringSubmatch(utterance); len(m) > 1 {
		ext.Name = titleCase(m[1])
	}
	if m := companyRe.FindStringSubmatch(utterance); len(m) > 1 {
		ext.Company = titleCase(strings.TrimSpace(m[1]))
	}

	for kw, industry := range industryLexicon {
		if strings.Contains(lower, kw) {
			ext.IndustryFocus = industry
			break
		}
	}
	for _, tool := range toolLexicon {
		if strings.Contains(lower, tool) {
			ext.CurrentTools = append(ext.CurrentTools, tool)
		}
	}
	for kw, pain := range painLexicon {
		if strings.Contains(lower, kw) {
			ext.PainPoints = append(ext.PainPoints, pain)
		}
	}
	for kw, goal := range goalLexicon {
		if strings.Contains(lower, kw) {
			ext.Goals = append(ext.Goals, goal)
		}
	}
	return ext
}
