package planner

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SearchSpec names the columns a family exposes to keyword search.
type SearchSpec struct {
	// CodeColumn holds stop codes, matched by long digit tokens.
	CodeColumn string
	// NumberColumn holds short line numbers. Empty when the family has none.
	NumberColumn string
	// LongTextColumn is also matched by every digit-only token.
	LongTextColumn string
	// TextColumns are matched by tokens containing a letter.
	TextColumns []string
	// CodeLeadingDigit marks short digit tokens that are stop code prefixes.
	CodeLeadingDigit string
}

// Tokenize splits text on anything that is not a letter or a digit and
// lower-cases the tokens with a fixed English locale.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return nil
	}

	lower := cases.Lower(language.English)
	tokens := make([]string, len(fields))
	for i, f := range fields {
		tokens[i] = lower.String(f)
	}
	return tokens
}

// BuildSearch ANDs one predicate per token. An empty token list yields an
// empty clause, i.e. the unfiltered listing.
func BuildSearch(tokens []string, spec SearchSpec) Clause {
	clauses := make([]Clause, 0, len(tokens))
	for _, tok := range tokens {
		clauses = append(clauses, spec.token(tok))
	}
	return AllOf(clauses...)
}

func (s SearchSpec) token(tok string) Clause {
	if !isASCIIDigits(tok) {
		var alts []Clause
		for _, col := range s.TextColumns {
			alts = append(alts, Like(col, tok))
		}
		return OneOf(alts...)
	}

	var alts []Clause
	switch {
	case s.CodeColumn != "" && s.looksLikeCode(tok):
		alts = append(alts, Like(s.CodeColumn, tok))
	case s.NumberColumn != "":
		alts = append(alts, Like(s.NumberColumn, tok))
	}
	if s.LongTextColumn != "" {
		alts = append(alts, Like(s.LongTextColumn, tok))
	}
	return OneOf(alts...)
}

func (s SearchSpec) looksLikeCode(tok string) bool {
	return len(tok) > 3 || (s.CodeLeadingDigit != "" && strings.HasPrefix(tok, s.CodeLeadingDigit))
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
