package match

import (
	"regexp"
	"strings"

	"github.com/soundprediction/evidential/pkg/types"
)

// Mode selects how accepted answers are interpreted during span matching.
type Mode int

const (
	// ModeExact treats each accepted answer as a token sequence and matches
	// it against document windows after lower-casing.
	ModeExact Mode = iota
	// ModeRegex treats each accepted answer as a case-insensitive regular
	// expression over the joined document string. Matched fragments are then
	// window-matched like exact answers. Used by the CuratedTrec family.
	ModeRegex
)

// Tokenizer splits text into tokens. Tokenization itself is an external
// concern; the matcher only requires that answers and documents were produced
// by the same tokenizer.
type Tokenizer interface {
	Tokenize(text string) []string
}

// WhitespaceTokenizer splits on whitespace. The shipped datasets are
// pre-tokenized, so joining on spaces and re-splitting is an exact inverse.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

// Matcher finds answer spans in candidate documents. It is stateless and safe
// for concurrent use.
type Matcher struct {
	tok Tokenizer
}

// NewMatcher creates a matcher. A nil tokenizer falls back to whitespace
// tokenization.
func NewMatcher(tok Tokenizer) *Matcher {
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	return &Matcher{tok: tok}
}

// FindSpans returns every inclusive token span of docTokens that lexically
// matches one of the accepted answers, ordered by accepted answer and then by
// window position. HasAnswer is true iff at least one span matched.
//
// In ModeRegex a pattern that fails to compile yields (false, nil) rather
// than an error: a malformed ground-truth pattern means "no match", not a
// broken pass.
func (m *Matcher) FindSpans(answers [][]string, docTokens []string, mode Mode) types.HasAnswerRecord {
	text := make([]string, len(docTokens))
	for i, t := range docTokens {
		text[i] = strings.ToLower(t)
	}

	var spans []types.Span
	if mode == ModeRegex {
		spans = m.findRegexSpans(answers, text)
	} else {
		for _, answer := range answers {
			single := m.normalizeAnswer(strings.Join(answer, " "))
			spans = appendWindowMatches(spans, single, text)
		}
	}

	return types.HasAnswerRecord{HasAnswer: len(spans) > 0, Spans: spans}
}

func (m *Matcher) findRegexSpans(answers [][]string, text []string) []types.Span {
	paragraph := strings.Join(text, " ")

	var spans []types.Span
	for _, answer := range answers {
		pattern := strings.Join(answer, " ")
		re, err := regexp.Compile("(?i)(" + pattern + ")")
		if err != nil {
			return nil
		}
		for _, groups := range re.FindAllStringSubmatch(paragraph, -1) {
			if len(groups) < 2 {
				continue
			}
			fragment := m.normalizeAnswer(groups[1])
			spans = appendWindowMatches(spans, fragment, text)
		}
	}
	return spans
}

// normalizeAnswer lower-cases and re-tokenizes an answer string so it is
// comparable to the lower-cased document tokens.
func (m *Matcher) normalizeAnswer(answer string) []string {
	tokens := m.tok.Tokenize(strings.ToLower(answer))
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return tokens
}

func appendWindowMatches(spans []types.Span, answer []string, text []string) []types.Span {
	if len(answer) == 0 {
		return spans
	}
	for i := 0; i+len(answer) <= len(text); i++ {
		if tokensEqual(answer, text[i:i+len(answer)]) {
			spans = append(spans, types.Span{Start: i, End: i + len(answer) - 1})
		}
	}
	return spans
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
