package voice

type Category string

const (
	CategoryNoSpeech     Category = "no-speech"
	CategoryAudioCapture Category = "audio-capture"
	CategoryNotAllowed   Category = "not-allowed"
	CategoryNetwork      Category = "network"
	CategoryLanguage     Category = "language-not-supported"
	CategoryOther        Category = "other"
)

// Categorize maps a recognizer error code. ok is false for codes that are
// not worth reporting, which today is only "aborted".
func Categorize(code string) (c Category, ok bool) {
	switch code {
	case "aborted":
		return "", false
	case "no-speech":
		return CategoryNoSpeech, true
	case "audio-capture":
		return CategoryAudioCapture, true
	case "not-allowed", "service-not-allowed":
		return CategoryNotAllowed, true
	case "network":
		return CategoryNetwork, true
	case "language-not-supported":
		return CategoryLanguage, true
	default:
		return CategoryOther, true
	}
}

func (c Category) Message() string {
	switch c {
	case CategoryNoSpeech:
		return "No speech detected. Try speaking closer to the microphone."
	case CategoryAudioCapture:
		return "No microphone access. Check the device permissions."
	case CategoryNotAllowed:
		return "Microphone permission denied. Enable it and try again."
	case CategoryNetwork:
		return "Network error during speech recognition. Check your connection."
	case CategoryLanguage:
		return "English (en-US) recognition is not available."
	default:
		return "Speech recognition error. Please try again."
	}
}
