package tts

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable label.
	Name string `json:"name"`

	// Provider identifies the backend the voice belongs to.
	Provider string `json:"provider"`

	// Language is a BCP-47 language code such as "en-US".
	Language string `json:"language,omitempty"`

	// Gender is MALE, FEMALE or NEUTRAL.
	Gender string `json:"gender,omitempty"`

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DefaultVoiceID is the voice used when neither the persona nor the settings
// select one.
const DefaultVoiceID = "en-US-Standard-B"

// Catalogue is the built-in list of device voices users pick from.
var Catalogue = []VoiceProfile{
	{ID: "en-US-Standard-B", Name: "US Standard B (Male)", Provider: "device", Language: "en-US", Gender: "MALE"},
	{ID: "en-US-Standard-C", Name: "US Standard C (Female)", Provider: "device", Language: "en-US", Gender: "FEMALE"},
	{ID: "en-US-Standard-D", Name: "US Standard D (Male)", Provider: "device", Language: "en-US", Gender: "MALE"},
	{ID: "en-US-Standard-E", Name: "US Standard E (Female)", Provider: "device", Language: "en-US", Gender: "FEMALE"},
	{ID: "en-US-Wavenet-D", Name: "US WaveNet D (Male)", Provider: "device", Language: "en-US", Gender: "MALE"},
	{ID: "en-US-Wavenet-F", Name: "US WaveNet F (Female)", Provider: "device", Language: "en-US", Gender: "FEMALE"},
}

// LookupVoice returns the catalogue entry for id.
func LookupVoice(id string) (VoiceProfile, bool) {
	for _, v := range Catalogue {
		if v.ID == id {
			return v, true
		}
	}
	return VoiceProfile{}, false
}
