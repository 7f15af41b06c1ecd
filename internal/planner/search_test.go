package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var stopSearch = SearchSpec{
	CodeColumn:       "code",
	NumberColumn:     "line",
	LongTextColumn:   "place",
	TextColumns:      []string{"place", "name"},
	CodeLeadingDigit: "5",
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"mont", "royal", "51"}, Tokenize("  Mont-Royal/51 "))
	assert.Equal(t, []string{"côte", "des", "neiges"}, Tokenize("CÔTE DES NEIGES"))
	assert.Equal(t, []string{"i"}, Tokenize("I"))
	assert.Nil(t, Tokenize(" -/ "))
}

func TestBuildSearch(t *testing.T) {
	tests := []struct {
		name string
		text string
		sql  string
		args []any
		spec SearchSpec
	}{
		{
			name: "empty is unfiltered",
			text: "",
			spec: stopSearch,
		},
		{
			name: "words and across tokens",
			text: "Mont Royal",
			sql:  "((place LIKE ?) OR (name LIKE ?)) AND ((place LIKE ?) OR (name LIKE ?))",
			args: []any{"%mont%", "%mont%", "%royal%", "%royal%"},
			spec: stopSearch,
		},
		{
			name: "long digits match code",
			text: "1234",
			sql:  "(code LIKE ?) OR (place LIKE ?)",
			args: []any{"%1234%", "%1234%"},
			spec: stopSearch,
		},
		{
			name: "leading code digit matches code",
			text: "52",
			sql:  "(code LIKE ?) OR (place LIKE ?)",
			args: []any{"%52%", "%52%"},
			spec: stopSearch,
		},
		{
			name: "short digits match number",
			text: "51",
			sql:  "(line LIKE ?) OR (place LIKE ?)",
			args: []any{"%51%", "%51%"},
			spec: stopSearch,
		},
		{
			name: "no number column",
			text: "12",
			sql:  "place LIKE ?",
			args: []any{"%12%"},
			spec: SearchSpec{CodeColumn: "code", LongTextColumn: "place", TextColumns: []string{"place"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := BuildSearch(Tokenize(tt.text), tt.spec)
			assert.Equal(t, tt.sql, c.SQL)
			assert.Equal(t, tt.args, c.Args)
		})
	}
}
