package compiler

import (
	"strings"

	"github.com/Masterminds/squirrel"
)

// Search is a parsed free-text search: every group in Goods must match (any
// term in the group will do) and no term in Bads may match.
//
//	agaricus OR amanita -amanitarita
//	=> Goods [[agaricus amanita]], Bads [amanitarita]
type Search struct {
	Goods [][]string
	Bads  []string
}

type searchToken struct {
	text    string
	negated bool
	quoted  bool
}

// ParseSearch parses the search syntax: space-separated terms, "quoted
// phrases", OR between alternatives and a leading - to exclude a term.
func ParseSearch(s string) Search {
	tokens := lexSearch(s)
	var search Search
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.negated {
			search.Bads = append(search.Bads, tok.text)
			continue
		}
		group := []string{tok.text}
		for i+2 < len(tokens) && isOr(tokens[i+1]) && !tokens[i+2].negated {
			group = append(group, tokens[i+2].text)
			i += 2
		}
		search.Goods = append(search.Goods, group)
	}
	return search
}

func isOr(tok searchToken) bool {
	return tok.text == "OR" && !tok.quoted && !tok.negated
}

func lexSearch(s string) []searchToken {
	var tokens []searchToken
	s = strings.TrimSpace(s)
	for len(s) > 0 {
		var tok searchToken
		if len(s) > 1 && s[0] == '-' {
			tok.negated = true
			s = s[1:]
		}
		if s[0] == '"' {
			if end := strings.IndexByte(s[1:], '"'); end > 0 {
				tok.text = s[1 : end+1]
				tok.quoted = true
				s = s[end+2:]
			}
		}
		if !tok.quoted {
			end := strings.IndexAny(s, " \t\n")
			if end < 0 {
				end = len(s)
			}
			tok.text = s[:end]
			s = s[end:]
		}
		if tok.text != "" {
			tokens = append(tokens, tok)
		}
		s = strings.TrimLeft(s, " \t\n")
	}
	return tokens
}

// Blank reports whether the search has no terms.
func (s Search) Blank() bool {
	return len(s.Goods) == 0 && len(s.Bads) == 0
}

// Condition matches the search case-insensitively against the
// concatenation of columns (any column for goods, no column for bads).
func (s Search) Condition(columns ...string) squirrel.Sqlizer {
	and := squirrel.And{}
	for _, group := range s.Goods {
		or := squirrel.Or{}
		for _, term := range group {
			for _, col := range columns {
				or = append(or, likeExpr(col, term, false))
			}
		}
		and = append(and, or)
	}
	for _, term := range s.Bads {
		for _, col := range columns {
			and = append(and, likeExpr(col, term, true))
		}
	}
	return and
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains is the LIKE pattern matching term anywhere.
func Contains(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// EndsWith is the LIKE pattern matching term at the end.
func EndsWith(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term))
}

func likeExpr(col, term string, negated bool) squirrel.Sqlizer {
	op := "LIKE"
	if negated {
		op = "NOT LIKE"
	}
	return squirrel.Expr("LOWER("+col+") "+op+" ? ESCAPE '\\'", Contains(term))
}
