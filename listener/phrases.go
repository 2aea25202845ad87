package listener

import "strings"

const (
	DefaultWakeWord = "sunday"

	ClarifyPhrase       = "Did you mean Sunday? Say it clearly if you need me."
	MissedCommandPhrase = "I didn't catch the command. Try again after 'Sunday'."
	ReadyPhrase         = "I'm ready when you are."
)

var (
	DefaultWakeResponses = []string{
		"Yes, I'm listening! What would you like to do?",
		"I'm here! How can I assist your practice?",
		"Yes, tell me how I can help!",
		"Hello! What shall we work on together?",
	}

	DefaultNearMisses = []string{"sundae", "sundays", "sunday's", "someday"}
)

// StripWakeWord removes a leading wake word and the punctuation after it.
func StripWakeWord(text string, wakeWord string) string {
	text = strings.TrimSpace(text)
	if wakeWord == "" || !strings.HasPrefix(strings.ToLower(text), strings.ToLower(wakeWord)) {
		return text
	}
	return trimSeparators(text[len(wakeWord):])
}

// afterWakeWord returns what follows the first wake word in text, or "" if
// the wake word is absent.
func afterWakeWord(text string, wakeWord string) string {
	index := strings.Index(text, wakeWord)
	if index < 0 {
		return ""
	}
	return trimSeparators(text[index+len(wakeWord):])
}

func trimSeparators(text string) string {
	// drop a suffix glued to the wake word, as in "sunday's" or "sundays"
	if text != "" && !strings.ContainsRune(separators, rune(text[0])) {
		index := strings.IndexByte(text, ' ')
		if index < 0 {
			return ""
		}
		text = text[index:]
	}
	return strings.TrimSpace(strings.TrimLeft(text, separators))
}

const separators = " \t,.!?;:"
