package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Action tags what an intent does once matched.
type Action string

const (
	ActionNavigate Action = "navigate"
	ActionReply    Action = "reply"
	ActionShutdown Action = "shutdown"
)

// MatchMode controls how keywords are found in a command.
type MatchMode string

const (
	// MatchSubstring matches a keyword anywhere, including inside words.
	MatchSubstring MatchMode = "substring"
	// MatchWord matches a keyword only as whole words, so "ar" does not
	// fire on "start".
	MatchWord MatchMode = "word"
)

type Intent struct {
	Name     string    `mapstructure:"name"`
	Keywords []string  `mapstructure:"keywords"`
	Match    MatchMode `mapstructure:"match"`
	Action   Action    `mapstructure:"action"`
	// Section is the navigation target for ActionNavigate.
	Section string `mapstructure:"section"`
	// SpeakFirst announces Response before navigating instead of after.
	SpeakFirst bool `mapstructure:"speak_first"`
	// Response is spoken after an acknowledgement for navigation, or on its
	// own for replies and shutdown.
	Response string `mapstructure:"response"`
	// Fallback is spoken when navigation fails.
	Fallback string `mapstructure:"fallback"`
}

// DefaultIntents in priority order; the first match wins.
var DefaultIntents = []Intent{
	{
		Name:     "pose_library",
		Keywords: []string{"open pose library", "poses", "asanas"},
		Action:   ActionNavigate,
		Section:  "pose_library",
		Response: "Opening the yoga pose library.",
		Fallback: "Opening pose library...",
	},
	{
		Name:     "ar_correction",
		Keywords: []string{"ar", "correction", "camera", "tracking", "posture"},
		Match:    MatchWord,
		Action:   ActionNavigate,
		Section:  "ar_correction",
		Response: "Starting AR posture correction. Stand 6 feet from your camera!",
		Fallback: "Setting up camera...",
	},
	{
		Name:     "routine",
		Keywords: []string{"routine", "plan", "workout", "schedule"},
		Action:   ActionNavigate,
		Section:  "routine",
		Response: "Opening your personalized routine.",
		Fallback: "Loading your routine...",
	},
	{
		Name:     "assistant",
		Keywords: []string{"assistant", "chat", "help", "ai", "virtual assistant"},
		Match:    MatchWord,
		Action:   ActionNavigate,
		Section:  "assistant",
		Response: "Opening chat. What would you like to know?",
		Fallback: "Opening chat...",
	},
	{
		Name:       "tadasana",
		Keywords:   []string{"tadasana", "mountain"},
		Action:     ActionNavigate,
		Section:    "ar_correction",
		SpeakFirst: true,
		Response:   "Starting Tadasana.",
	},
	{
		Name:       "vrikshasana",
		Keywords:   []string{"vrikshasana", "tree"},
		Action:     ActionNavigate,
		Section:    "ar_correction",
		SpeakFirst: true,
		Response:   "Starting Tree Pose.",
	},
	{
		Name:       "namastey",
		Keywords:   []string{"namastey", "prayer"},
		Action:     ActionNavigate,
		Section:    "ar_correction",
		SpeakFirst: true,
		Response:   "Starting Namastey.",
	},
	{
		Name:     "status",
		Keywords: []string{"test", "status"},
		Action:   ActionReply,
		Response: "I'm ready! Try 'open pose library' or 'start AR correction'.",
	},
	{
		Name:     "thanks",
		Keywords: []string{"thank", "thanks"},
		Action:   ActionReply,
		Response: "You're welcome! Namaste.",
	},
	{
		Name:     "greeting",
		Keywords: []string{"hello", "hi", "hey"},
		Match:    MatchWord,
		Action:   ActionReply,
		Response: "Hello! How can I help today?",
	},
	{
		Name:     "shutdown",
		Keywords: []string{"stop", "quit", "exit", "shutdown", "goodbye"},
		Action:   ActionShutdown,
		Response: "Thank you for your practice! Namaste!",
	},
}

type compiledIntent struct {
	Intent
	patterns []*regexp.Regexp
}

// Table is an immutable, ordered set of intents.
type Table struct {
	intents []compiledIntent
}

func NewTable(intents []Intent) (*Table, error) {
	if len(intents) == 0 {
		return nil, fmt.Errorf("intent table is empty")
	}

	seen := make(map[string]bool, len(intents))
	compiled := make([]compiledIntent, 0, len(intents))

	for i, in := range intents {
		if err := validate(in); err != nil {
			return nil, fmt.Errorf("intent %d (%q): %w", i+1, in.Name, err)
		}
		if seen[in.Name] {
			return nil, fmt.Errorf("intent %q is defined twice", in.Name)
		}
		seen[in.Name] = true

		c := compiledIntent{Intent: in}
		c.Keywords = make([]string, 0, len(in.Keywords))
		for _, keyword := range in.Keywords {
			keyword = clean(keyword)
			if keyword == "" {
				continue
			}
			c.Keywords = append(c.Keywords, keyword)
			if in.Match == MatchWord {
				c.patterns = append(c.patterns, regexp.MustCompile(wordPattern(keyword)))
			}
		}
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("intent %q has no keywords", in.Name)
		}

		compiled = append(compiled, c)
	}

	return &Table{intents: compiled}, nil
}

func validate(in Intent) error {
	if in.Name == "" {
		return fmt.Errorf("name is empty")
	}

	switch in.Match {
	case "", MatchSubstring, MatchWord:
	default:
		return fmt.Errorf("unknown match mode %q", in.Match)
	}

	switch in.Action {
	case ActionNavigate:
		if in.Section == "" {
			return fmt.Errorf("navigate intent needs a section")
		}
	case ActionReply, ActionShutdown:
		if in.Response == "" {
			return fmt.Errorf("%s intent needs a response", in.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", in.Action)
	}

	return nil
}

// Match returns the first intent, in table order, with a keyword in command.
// command is expected to be normalized.
func (t *Table) Match(command string) (Intent, bool) {
	for _, in := range t.intents {
		if in.matches(command) {
			return in.Intent, true
		}
	}
	return Intent{}, false
}

// Intents returns a copy of the table in priority order.
func (t *Table) Intents() []Intent {
	intents := make([]Intent, len(t.intents))
	for i, in := range t.intents {
		intents[i] = in.Intent
	}
	return intents
}

func (c compiledIntent) matches(command string) bool {
	if c.Match == MatchWord {
		for _, re := range c.patterns {
			if re.MatchString(command) {
				return true
			}
		}
		return false
	}

	for _, keyword := range c.Keywords {
		if strings.Contains(command, keyword) {
			return true
		}
	}
	return false
}
