// Package normalize cleans raw native or OCR text into a stable form.
//
// Rules run in a fixed order and the whole pass repeats until the text stops
// changing, so Normalize(Normalize(x)) == Normalize(x) for every input.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Rules selects and tunes the normalization steps.
type Rules struct {
	// UnicodeNFKC folds compatibility characters (ligatures, full-width
	// forms, non-breaking spaces) before any other rule runs.
	UnicodeNFKC bool

	// NoiseAlphabet lists the uppercase letters that checkbox and border
	// artifacts are read as. Tokens made only of these letters and no longer
	// than MaxNoiseTokenLength are dropped. Empty disables the rule.
	NoiseAlphabet       string
	MaxNoiseTokenLength int

	// FragmentLength is the longest line treated as a split-off fragment.
	// Zero disables fragment merging.
	FragmentLength int

	// FixConfusions rewrites common OCR glyph confusions (l1, 0O, rn, |).
	FixConfusions bool

	// DropRepeatedLines removes consecutive duplicate lines, typically
	// running headers picked up twice.
	DropRepeatedLines bool
}

// DefaultRules returns the rule set used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		UnicodeNFKC:         true,
		NoiseAlphabet:       "TE",
		MaxNoiseTokenLength: 4,
		FragmentLength:      2,
	}
}

// checkbox artifacts: [ ], [_], [I], [_I], [ _ I ]
var bracketArtifact = regexp.MustCompile(`\[\s*_?\s*I?\s*\]`)

var confusions = strings.NewReplacer(
	"l1", "li",
	"0O", "00",
	"rn", "m",
)

// Normalizer applies a rule set. It is safe for concurrent use.
type Normalizer struct {
	rules Rules
	noise map[rune]bool
}

// New creates a Normalizer for rules.
func New(rules Rules) *Normalizer {
	noise := make(map[rune]bool)
	for _, r := range rules.NoiseAlphabet {
		noise[unicode.ToUpper(r)] = true
	}
	if rules.MaxNoiseTokenLength <= 0 {
		rules.MaxNoiseTokenLength = 4
	}
	return &Normalizer{rules: rules, noise: noise}
}

// Default returns a Normalizer using DefaultRules.
func Default() *Normalizer {
	return New(DefaultRules())
}

// Normalize returns the cleaned text.
func (n *Normalizer) Normalize(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}
	// A pass never lengthens text after the first, and a same-length pass only
	// replaces characters no rule produces (tabs, newlines, '|', '1', 'O'),
	// so the loop ends.
	for {
		next := n.pass(text)
		if next == text {
			return text
		}
		text = next
	}
}

// Normalize cleans text with the default rules.
func Normalize(text string) string {
	return Default().Normalize(text)
}

func (n *Normalizer) pass(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if n.rules.UnicodeNFKC {
		text = norm.NFKC.String(text)
	}
	text = stripControl(text)

	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, n.cleanLine(line))
	}

	if n.rules.FragmentLength > 0 {
		lines = mergeFragments(lines, n.rules.FragmentLength)
	}
	if n.rules.DropRepeatedLines {
		lines = dropRepeated(lines)
	}
	return strings.Join(collapseBlank(lines), "\n")
}

// stripControl removes control characters other than newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func (n *Normalizer) cleanLine(line string) string {
	// nested brackets such as "[[ ]]" expose a new artifact once the inner
	// one is gone
	for {
		next := bracketArtifact.ReplaceAllString(line, " ")
		if next == line {
			break
		}
		line = next
	}

	tokens := strings.Fields(line)
	kept := tokens[:0]
	for _, tok := range tokens {
		if isPipeToken(tok) || n.isNoiseToken(tok) {
			continue
		}
		if n.rules.FixConfusions {
			tok = fixConfusions(tok)
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func isPipeToken(tok string) bool {
	return strings.Trim(tok, "|¦") == ""
}

func (n *Normalizer) isNoiseToken(tok string) bool {
	if len(n.noise) == 0 {
		return false
	}
	count := 0
	for _, r := range tok {
		if !n.noise[r] {
			return false
		}
		count++
	}
	return count > 0 && count <= n.rules.MaxNoiseTokenLength
}

func fixConfusions(tok string) string {
	tok = confusions.Replace(tok)
	if strings.ContainsRune(tok, '|') {
		tok = strings.ReplaceAll(tok, "|", "I")
	}
	return tok
}

// mergeFragments joins runs of short lines. Consecutive fragments are
// concatenated; the buffer becomes a space-separated prefix of the next
// regular line, or its own line when a blank line or the end comes first.
func mergeFragments(lines []string, maxLen int) []string {
	out := make([]string, 0, len(lines))
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}

	for _, line := range lines {
		switch n := utf8.RuneCountInString(line); {
		case n == 0:
			flush()
			out = append(out, line)
		case n <= maxLen:
			buf.WriteString(line)
		default:
			if buf.Len() > 0 {
				line = buf.String() + " " + line
				buf.Reset()
			}
			out = append(out, line)
		}
	}
	flush()
	return out
}

func dropRepeated(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if i > 0 && line != "" && line == lines[i-1] {
			continue
		}
		out = append(out, line)
	}
	return out
}

// collapseBlank keeps at most one blank line between paragraphs and none at
// the edges.
func collapseBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
