package voice

import "strings"

// Transcript reconciles recognizer output. Final fragments are appended once,
// interim fragments only ever replace the previous interim value.
type Transcript struct {
	words   []string
	interim string
}

// Apply folds one recognition event in. The interim value is recomputed from
// scratch every time.
func (t *Transcript) Apply(results []Result) {
	interim := ""
	for _, r := range results {
		text := strings.Join(strings.Fields(r.Text), " ")
		if text == "" {
			continue
		}
		if r.Final {
			t.commit(strings.Fields(text))
			continue
		}
		interim = text
	}
	if interim != "" && hasWordSuffix(t.words, strings.Fields(interim)) {
		interim = ""
	}
	t.interim = interim
}

func (t *Transcript) commit(words []string) {
	if hasWordSuffix(t.words, words) {
		return
	}
	if len(words) == 1 && len(t.words) > 0 && sameWord(t.words[len(t.words)-1], words[0]) {
		return
	}
	t.words = append(t.words, words...)
}

func (t *Transcript) Committed() string { return strings.Join(t.words, " ") }

func (t *Transcript) Interim() string { return t.interim }

// Preview is what a live caption should show.
func (t *Transcript) Preview() string {
	c := t.Committed()
	switch {
	case t.interim == "":
		return c
	case c == "":
		return t.interim
	default:
		return c + " " + t.interim
	}
}

func (t *Transcript) Reset() {
	t.words = nil
	t.interim = ""
}

func hasWordSuffix(have, tail []string) bool {
	if len(tail) == 0 || len(tail) > len(have) {
		return false
	}
	off := len(have) - len(tail)
	for i, w := range tail {
		if !sameWord(have[off+i], w) {
			return false
		}
	}
	return true
}

func sameWord(a, b string) bool {
	return normalizeWord(a) == normalizeWord(b)
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimRight(w, ".,!?;:…"))
}
