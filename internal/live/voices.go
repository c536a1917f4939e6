package live

// DefaultVoice is used when no voice identity is configured.
const DefaultVoice = "Puck"

// voiceNames is the fixed set of prebuilt voice identities offered by the
// live service.
var voiceNames = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck", "Zephyr"}

// Voices returns the fixed set of recognised voice identities.
func Voices() []string {
	out := make([]string, len(voiceNames))
	copy(out, voiceNames)
	return out
}

// IsVoice reports whether name is a recognised voice identity.
func IsVoice(name string) bool {
	for _, v := range voiceNames {
		if v == name {
			return true
		}
	}
	return false
}
