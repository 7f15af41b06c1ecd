package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	u, err := Parse("transit://transit/route/trip/stop/rue%20st-denis")
	require.NoError(t, err)
	assert.Equal(t, "transit", u.Authority)
	assert.Equal(t, []string{"route", "trip", "stop", "rue st-denis"}, u.Segments)
	assert.Equal(t, "transit://transit/route/trip/stop/rue%20st-denis", u.String())

	u, err = Parse("/data//favs/?x=1")
	require.NoError(t, err)
	assert.Equal(t, "data", u.Authority)
	assert.Equal(t, []string{"favs"}, u.Segments)

	_, err = Parse("transit://")
	assert.ErrorIs(t, err, ErrInvalidURI)

	_, err = Parse("data/favs/%zz")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

func TestURIHelpers(t *testing.T) {
	root := New("data", "favs")
	child := root.Append("12")

	assert.Equal(t, "/favs/12", child.Path())
	assert.Equal(t, "/", New("data").Path())
	assert.Equal(t, "transit://data", New("data").String())
	assert.True(t, root.IsAncestorOf(child))
	assert.False(t, child.IsAncestorOf(root))
	assert.False(t, root.IsAncestorOf(root))
	assert.True(t, root.Equal(New("data", "favs")))
	assert.False(t, root.Equal(New("stm", "favs")))
	assert.False(t, New("stm", "favs").IsAncestorOf(New("data", "favs", "1")))

	assert.Panics(t, func() { MustParse("") })
}

func TestOverlaps(t *testing.T) {
	favs := New("data", "favs")
	fav := favs.Append("3")

	tests := []struct {
		name        string
		published   URI
		watched     URI
		descendants bool
		want        bool
	}{
		{"same identifier", favs, favs, false, true},
		{"child without descendants", fav, favs, false, false},
		{"child with descendants", fav, favs, true, true},
		{"ancestor publication", favs, fav, false, true},
		{"sibling", New("data", "history"), favs, true, false},
		{"other authority", New("stm", "favs"), favs, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.published.Overlaps(tt.watched, tt.descendants))
		})
	}
}
