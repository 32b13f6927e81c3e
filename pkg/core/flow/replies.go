package flow

import "strings"

const (
	clarifyText = "I need the exact location (street/address/city) to look up nearby incident reports. " +
		"Can you tell me the street or nearest landmark? If you are in immediate danger, call emergency services now."

	placesHeader = "Based on your location, here are nearby places you can go:"
	placesFooter = "If you want directions or turn-by-turn navigation, reply with your exact address " +
		"or confirm which place above to get more details."
	placesEmptyText = "I couldn't find nearby emergency facilities automatically. Please tell me your street address " +
		"or nearest landmark so I can show nearby hospitals, police, or fire stations. " +
		"If you're in immediate danger, call emergency services now."
	placesErrorText = "I couldn't look up nearby places right now. Please tell me your exact address or nearest landmark."

	newsHeader = "I found recent reports mentioning this location:"
	newsFooter = "If you are in immediate danger, call emergency services now.\n" +
		"If you want, confirm your exact address and I can show nearest hospitals/fire/police."

	// FallbackText is spoken when the language model cannot produce a reply.
	FallbackText = "I'm having trouble reaching my assistant right now. If you are in immediate danger, " +
		"call emergency services now. Tell me where you are and what is happening."
)

func confirmLocationText(partial string) string {
	return "I heard '" + partial + "' — can you confirm the full street name or nearest cross-street? " +
		"If you're unsure, give any nearby city or landmark. If in immediate danger, call emergency services now."
}

var immediateHints = map[string]string{
	"flood": "If outdoors, move to higher ground or into a sturdy building; avoid walking or driving through floodwater. " +
		"Call emergency services if anyone is injured.",
	"earthquake": "If indoors, drop, cover, and hold on; if outdoors, move to open space away from buildings and power lines. " +
		"Check for injuries and call emergency services if needed.",
	"fire": "If inside, evacuate immediately, stay low to avoid smoke, and call emergency services. " +
		"If outside, move away from smoke and burning structures.",
	"medical": "If someone is unresponsive or not breathing, call emergency services immediately and begin CPR if trained. " +
		"Prioritize getting professional medical help.",
}

const defaultImmediateHint = "Follow general emergency procedures and call emergency services if the situation is life-threatening."

// ImmediateHint returns the synchronous safety advice for an emergency type.
func ImmediateHint(emergencyType string) string {
	if h, ok := immediateHints[emergencyType]; ok {
		return h
	}
	return defaultImmediateHint
}

var safetyHints = map[string]string{
	"flood":      "If outdoors, seek higher ground or enter sturdy multi-storey building; avoid driving through water.",
	"earthquake": "If outdoors, move to open space away from buildings, trees, and power lines.",
	"fire":       "If inside, evacuate and call emergency services; if outside, move away from smoke and fire.",
	"medical":    "Prioritize calling emergency services and getting to nearest hospital if critical.",
}

const defaultSafetyHint = "Follow general emergency procedures; ask user for exact location if unclear."

// SafetyHint returns the short hint included in the model prompt.
func SafetyHint(emergencyType string) string {
	if h, ok := safetyHints[emergencyType]; ok {
		return h
	}
	return defaultSafetyHint
}

func joinLines(header string, lines []string, footer string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, l := range lines {
		b.WriteByte('\n')
		b.WriteString(l)
	}
	if footer != "" {
		b.WriteByte('\n')
		b.WriteString(footer)
	}
	return b.String()
}
