// Package moderation provides content filtering and moderation capabilities.
// It screens chat messages for prohibited content and enforces community
// guidelines before messages are delivered to recipients.
package moderation

import "strings"

// FilterResult is the outcome of a single Check or checkSpamPatterns call.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string
}

// phrase is a blocklist entry of two or more words, matched as an exact
// consecutive token sequence — "kill yourself" does not match "kill
// yourselves" or "kill and yourself".
type phrase struct {
	tokens []string
	text   string
}

// Filter holds a blocklist of single words and multi-word phrases, checked
// alongside the spam-pattern heuristics in spam.go. It is safe for
// concurrent use: all state is read-only after construction.
type Filter struct {
	words   map[string]struct{}
	phrases []phrase
}

// NewFilter builds a Filter from the built-in default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultBlocklist)
}

// NewFilterWithTerms builds a Filter from a custom term list. Blank or
// whitespace-only entries are skipped. A term containing a space is stored
// as a phrase; otherwise it is stored as a single word.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, t := range terms {
		term := strings.ToLower(strings.TrimSpace(t))
		if term == "" {
			continue
		}
		if strings.Contains(term, " ") {
			tokens := strings.Fields(term)
			f.phrases = append(f.phrases, phrase{tokens: tokens, text: strings.Join(tokens, " ")})
			continue
		}
		f.words[term] = struct{}{}
	}
	return f
}

// Check screens text against the word/phrase blocklist and the spam-pattern
// heuristics, in that order — a blocked keyword is reported before a spam
// pattern even when both match.
func (f *Filter) Check(text string) FilterResult {
	if r := f.checkWords(text); r.Blocked {
		return r
	}
	if r := f.checkPhrases(text); r.Blocked {
		return r
	}
	return f.checkSpamPatterns(text)
}

func (f *Filter) checkWords(text string) FilterResult {
	for _, tok := range tokenizePlain(text) {
		if _, ok := f.words[strings.ToLower(tok)]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: strings.ToLower(tok)}
		}
	}
	for _, tok := range tokenizeLeet(text) {
		norm := normalizeLeet(tok)
		if _, ok := f.words[norm]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}
	return FilterResult{}
}

func (f *Filter) checkPhrases(text string) FilterResult {
	if len(f.phrases) == 0 {
		return FilterResult{}
	}
	tokens := tokenizePlain(text)
	for i := range tokens {
		tokens[i] = strings.ToLower(tokens[i])
	}
	for _, p := range f.phrases {
		n := len(p.tokens)
		if n == 0 || n > len(tokens) {
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			if tokensEqual(tokens[i:i+n], p.tokens) {
				return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: p.text}
			}
		}
	}
	return FilterResult{}
}

func tokensEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckInterests filters a profile's declared interests, returning only the
// entries that pass Check, in their original order.
func (f *Filter) CheckInterests(interests []string) []string {
	clean := make([]string, 0, len(interests))
	for _, interest := range interests {
		if !f.Check(interest).Blocked {
			clean = append(clean, interest)
		}
	}
	return clean
}

// leetSubs maps common leetspeak substitutions back to the letter they
// stand in for. Deliberately small: only digits/symbols seen in practice,
// not every homoglyph under the sun.
var leetSubs = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'!': 'i',
	'$': 's',
}

// normalizeLeet lowercases s and substitutes leetspeak characters back to
// the letters they visually resemble.
func normalizeLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if sub, ok := leetSubs[r]; ok {
			b.WriteRune(sub)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenizePlain splits s on whitespace and punctuation, keeping only
// letter/digit runs. Used for exact-token word and phrase matching.
func tokenizePlain(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if isWordRune(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// tokenizeLeet splits s on whitespace only, leaving leet substitution
// characters (@, !, $, digits) intact within a token so normalizeLeet can
// still recover the original word from "b@dw0rd".
func tokenizeLeet(s string) []string {
	return strings.Fields(s)
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// defaultBlocklist spans the categories a 1-to-1 anonymous chat service
// needs to screen for: slurs, self-harm, CSAM, sexual solicitation, hate
// speech, threats of violence, and scam/spam phrases.
var defaultBlocklist = []string{
	"nigger",
	"nigga",
	"faggot",
	"retard",
	"kill yourself",
	"kys",
	"go die",
	"child porn",
	"cp",
	"child abuse",
	"send nudes",
	"send nude",
	"show tits",
	"heil hitler",
	"sieg heil",
	"white power",
	"bomb threat",
	"shoot up",
	"mass shooting",
	"free bitcoin",
	"free crypto",
	"click here to win",
	"nude pics",
	"rape you",
}
