package domain

import "strings"

// Intent is the classified purpose of a user's input, drawn from a closed set.
type Intent string

const (
	IntentIrrigation     Intent = "IRRIGATION"
	IntentFertilization  Intent = "FERTILIZATION"
	IntentPest           Intent = "PEST"
	IntentWeather        Intent = "WEATHER"
	IntentDataQuery      Intent = "DATA_QUERY"
	IntentVisionAnalysis Intent = "VISION_ANALYSIS"
	IntentGreeting       Intent = "GREETING"
	IntentOffTopic       Intent = "OFF_TOPIC"
	IntentUnknown        Intent = "UNKNOWN"
)

// Intents lists every member of the closed set. Routing tables are validated
// against this list at startup so an unmapped intent fails fast.
func Intents() []Intent {
	return []Intent{
		IntentIrrigation,
		IntentFertilization,
		IntentPest,
		IntentWeather,
		IntentDataQuery,
		IntentVisionAnalysis,
		IntentGreeting,
		IntentOffTopic,
		IntentUnknown,
	}
}

// Valid reports whether the intent is a member of the closed set.
func (i Intent) Valid() bool {
	for _, known := range Intents() {
		if i == known {
			return true
		}
	}
	return false
}

// Advisory reports whether the intent routes to the domain-advisory node.
func (i Intent) Advisory() bool {
	switch i {
	case IntentIrrigation, IntentFertilization, IntentPest, IntentWeather:
		return true
	default:
		return false
	}
}

// ParseIntent maps free text (e.g. a model completion) onto the closed set.
// Anything unresolvable maps to IntentUnknown, never to an out-of-set value.
func ParseIntent(s string) Intent {
	candidate := Intent(strings.ToUpper(strings.TrimSpace(s)))
	if candidate.Valid() {
		return candidate
	}
	return IntentUnknown
}
