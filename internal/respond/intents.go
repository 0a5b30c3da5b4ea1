package respond

import (
	"strings"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Intent labels recognized in an utterance.
const (
	IntentPricing           = "pricing"
	IntentServices          = "services"
	IntentTechnical         = "technical"
	IntentCompany           = "company"
	IntentSupport           = "support"
	IntentDiscoveryCall     = "discovery_call"
	IntentLeadQualification = "lead_qualification"
	IntentIndustrySpecific  = "industry_specific"
)

var intentLexicon = map[string][]string{
	IntentPricing: {
		"price", "pricing", "cost", "how much", "fee", "budget", "quote",
		"subscription", "plan",
	},
	IntentServices: {
		"service", "what do you do", "what do you offer", "offerings",
		"capabilities", "features", "solutions", "help with",
	},
	IntentTechnical: {
		"api", "integration", "integrate", "webhook", "security", "technical",
		"architecture", "data", "export", "sso", "compliance",
	},
	IntentCompany: {
		"who are you", "about your company", "your team", "founded",
		"where are you based", "company background",
	},
	IntentSupport: {
		"help", "issue", "problem", "not working", "error", "broken",
		"support", "stuck",
	},
	IntentDiscoveryCall: {
		"call", "meeting", "schedule", "demo", "talk to sales", "book",
		"consultation", "appointment",
	},
	IntentLeadQualification: {
		"we need", "we handle", "our company", "looking for", "enterprise",
		"team of", "employees", "inquiries",
	},
	IntentIndustrySpecific: {
		"healthcare", "finance", "fintech", "ecommerce", "retail",
		"real estate", "logistics", "education", "manufacturing",
	},
}

// IntentAnalysis is the cheap lexical pass that steers retrieval and
// the discovery-call offer.
type IntentAnalysis struct {
	Intents                 []string
	ShouldOfferDiscovery    bool
	PrimaryBusinessCategory string
}

// AnalyzeIntents scans the utterance against the fixed intent lexicon.
func AnalyzeIntents(utterance string) IntentAnalysis {
	lower := strings.ToLower(utterance)
	var out IntentAnalysis
	for _, intent := range []string{
		IntentPricing, IntentServices, IntentTechnical, IntentCompany,
		IntentSupport, IntentDiscoveryCall, IntentLeadQualification,
		IntentIndustrySpecific,
	} {
		for _, kw := range intentLexicon[intent] {
			if strings.Contains(lower, kw) {
				out.Intents = append(out.Intents, intent)
				break
			}
		}
	}
	for _, i := range out.Intents {
		switch i {
		case IntentDiscoveryCall, IntentLeadQualification:
			out.ShouldOfferDiscovery = true
		case IntentPricing:
			out.ShouldOfferDiscovery = true
		}
	}
	if len(out.Intents) > 0 {
		out.PrimaryBusinessCategory = out.Intents[0]
	}
	return out
}

// EnrichQuery appends contact hints so retrieval favours documents that
// match the prospect's situation.
func EnrichQuery(utterance string, c *store.Contact) string {
	var b strings.Builder
	b.WriteString(utterance)
	if c == nil {
		return b.String()
	}
	if c.IndustryFocus != "" {
		b.WriteString(" industry: ")
		b.WriteString(c.IndustryFocus)
	}
	if c.CompanySize != "" {
		b.WriteString(" company size: ")
		b.WriteString(c.CompanySize)
	}
	return b.String()
}
