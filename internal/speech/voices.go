package speech

import "strings"

type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

func ParseGender(s string) Gender {
	if strings.EqualFold(strings.TrimSpace(s), string(Male)) {
		return Male
	}
	return Female
}

// Voices lists the stock OpenAI voices by how they are usually perceived.
var Voices = map[Gender][]string{
	Female: {"nova", "shimmer", "coral", "sage", "alloy"},
	Male:   {"onyx", "echo", "fable", "ash"},
}

// PickVoice prefers an explicitly chosen voice, then a stock voice of the
// requested gender, then whatever is available first. An empty available
// list means any voice id is acceptable.
func PickVoice(gender Gender, preferred, available []string) string {
	ok := func(v string) bool {
		if len(available) == 0 {
			return true
		}
		for _, a := range available {
			if strings.EqualFold(a, v) {
				return true
			}
		}
		return false
	}
	for _, v := range preferred {
		if v = strings.TrimSpace(v); v != "" && ok(v) {
			return v
		}
	}
	for _, v := range Voices[gender] {
		if ok(v) {
			return v
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}
