package intent

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

const defaultLoopLimit = 30

// DefaultRules rewrites frequent misrecognitions of the command vocabulary.
var DefaultRules = []string{
	"post library => pose library",
	"pose liberty => pose library",
	"pose libraries => pose library",
	"a r => ar",
	"a.r. => ar",
	"namaste => namastey",
	"work out => workout",
	"tada sana => tadasana",
	"vriksasana => vrikshasana",
	"vrksasana => vrikshasana",
	`s/[.,!?;:"]+/ /g`,
}

type rule interface {
	Apply(input string) (output string, changed bool)
}

// Normalizer rewrites commands with an ordered rule list. Rules are applied
// left to right and the pass is repeated until nothing changes, so the
// result is a fixed point of Normalize.
type Normalizer struct {
	rules     []rule
	loopLimit int
}

// NewNormalizer compiles rules written as "from => to" literals or
// "s/pattern/replacement/flags" regular expressions.
func NewNormalizer(lines []string, loopLimit int) (*Normalizer, error) {
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}

	rules, err := parseRules(lines)
	if err != nil {
		return nil, err
	}

	return &Normalizer{rules: rules, loopLimit: loopLimit}, nil
}

// LoadRules reads one rule per line from path. A missing file yields no rules.
func LoadRules(fs afero.Fs, path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	return strings.Split(string(contents), "\n"), nil
}

func (n *Normalizer) Normalize(text string) string {
	result := clean(text)
	for i := 0; i < n.loopLimit; i++ {
		next := result
		for _, r := range n.rules {
			next, _ = r.Apply(next)
		}
		next = clean(next)

		if next == result {
			return result
		}
		result = next
	}

	return result
}

func clean(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func parseRules(lines []string) ([]rule, error) {
	rules := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rule
			err error
		)
		switch {
		case looksLikeRegexRule(line):
			r, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			r, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", index+1, err)
		}

		rules = append(rules, r)
	}

	return rules, nil
}

type literalRule struct {
	re          *regexp.Regexp
	replacement string
}

// parseLiteralRule matches whole words only, so "namaste => namastey" leaves
// "namastey" alone.
func parseLiteralRule(line string) (rule, error) {
	parts := strings.SplitN(line, "=>", 2)
	from := strings.TrimSpace(parts[0])
	to := strings.TrimSpace(parts[1])
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	re, err := regexp.Compile("(?i)" + wordPattern(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}

	return literalRule{re: re, replacement: to}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (rule, error) {
	delim := line[1]

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'i', ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}

	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}

	replaced := r.re.ReplaceAllString(input[loc[0]:loc[1]], r.replacement)
	output := input[:loc[0]] + replaced + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			if index+1 < len(line) && line[index+1] == delim {
				continue
			}
			builder.WriteByte(char)
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}

// wordPattern quotes s and anchors it at word boundaries on the sides that
// start or end with a word character.
func wordPattern(s string) string {
	pattern := regexp.QuoteMeta(s)
	if isWordByte(s[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(s[len(s)-1]) {
		pattern = pattern + `\b`
	}
	return pattern
}
