package contact

import "strings"

// Affect cues for engagement scoring.
var (
	highEngagementCues = []string{
		"!", "great", "awesome", "perfect", "excellent", "love", "amazing",
		"definitely", "excited", "can't wait", "sounds good",
	}
	lowEngagementCues = []string{
		"ok", "fine", "whatever", "maybe", "not sure", "i guess", "meh",
	}
	analyticalCues = []string{
		"data", "metrics", "roi", "compare", "analysis", "numbers",
		"specifically", "exactly", "details", "documentation",
	}
	intuitiveCues = []string{
		"feel", "seems", "sounds like", "i think", "gut", "impression",
	}
)

// Behavior is the derived behavioral snapshot of one utterance.
type Behavior struct {
	EngagementLevel       string // low, medium, high; "" when no signal
	InformationPreference string // detailed, concise; "" when neutral
	ResponseTimePattern   string // fast, medium, slow; "" when unknown
	DecisionMakingStyle   string // analytical, intuitive; "" when no signal
}

// AnalyzeBehavior derives behavioral patterns from one utterance.
// responseTimeSec is the gap since our last outbound message; pass a
// negative value when unknown.
func AnalyzeBehavior(utterance string, responseTimeSec float64) Behavior {
	var b Behavior
	lower := strings.ToLower(utterance)

	high, low := 0, 0
	for _, cue := range highEngagementCues {
		if strings.Contains(lower, cue) {
			high++
		}
	}
	for _, cue := range lowEngagementCues {
		if strings.Contains(lower, cue) {
			low++
		}
	}
	switch {
	case high > low && high > 0:
		b.EngagementLevel = "high"
	case low > high && low > 0:
		b.EngagementLevel = "low"
	}

	switch {
	case len(utterance) > 100:
		b.InformationPreference = "detailed"
	case len(utterance) < 20 && len(strings.TrimSpace(utterance)) > 0:
		b.InformationPreference = "concise"
	}

	if responseTimeSec >= 0 {
		switch {
		case responseTimeSec < 60:
			b.ResponseTimePattern = "fast"
		case responseTimeSec > 3600:
			b.ResponseTimePattern = "slow"
		default:
			b.ResponseTimePattern = "medium"
		}
	}

	analytical, intuitive := 0, 0
	for _, cue := range analyticalCues {
		if strings.Contains(lower, cue) {
			analytical++
		}
	}
	for _, cue := range intuitiveCues {
		if strings.Contains(lower, cue) {
			intuitive++
		}
	}
	switch {
	case analytical > intuitive && analytical > 0:
		b.DecisionMakingStyle = "analytical"
	case intuitive > analytical && intuitive > 0:
		b.DecisionMakingStyle = "intuitive"
	}

	return b
}
