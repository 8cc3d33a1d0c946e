package service

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dest(id int64, order uint16, mt ratedomain.MatchType, match string) ratedomain.Destination {
	return ratedomain.Destination{
		ID:          snowflake.ID(id),
		Name:        match,
		Type:        ratedomain.DestinationNormal,
		MatchType:   mt,
		Active:      true,
		LookupOrder: order,
		MatchString: match,
	}
}

func TestResolveDestinationLookupOrderWins(t *testing.T) {
	m := NewDestinationMatcher()
	dests := []ratedomain.Destination{
		dest(1, 20, ratedomain.MatchPrefix, "12"),
		dest(2, 10, ratedomain.MatchPrefix, "123"),
	}

	got, err := m.Resolve(dests, "1234")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), got.ID)
}

func TestResolveDestinationTieBreaksByID(t *testing.T) {
	m := NewDestinationMatcher()
	dests := []ratedomain.Destination{
		dest(9, 10, ratedomain.MatchPrefix, "1"),
		dest(3, 10, ratedomain.MatchPrefix, "12"),
	}

	got, err := m.Resolve(dests, "1234")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(3), got.ID)
}

func TestResolveDestinationSkipsInactive(t *testing.T) {
	m := NewDestinationMatcher()
	inactive := dest(1, 1, ratedomain.MatchExact, "1234")
	inactive.Active = false
	dests := []ratedomain.Destination{inactive, dest(2, 50, ratedomain.MatchSuffix, "34")}

	got, err := m.Resolve(dests, "1234")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), got.ID)

	_, err = m.Resolve([]ratedomain.Destination{inactive}, "1234")
	assert.ErrorIs(t, err, ratedomain.ErrNoDestinationMatch)
	assert.ErrorIs(t, err, ratedomain.ErrNoMatch)
}

func TestResolveDestinationMatchTypes(t *testing.T) {
	m := NewDestinationMatcher()
	tests := []struct {
		name   string
		dest   ratedomain.Destination
		called string
		match  bool
	}{
		{"exact", dest(1, 1, ratedomain.MatchExact, "1234"), "1234", true},
		{"exact is case sensitive", dest(1, 1, ratedomain.MatchExact, "sip:Bob"), "sip:bob", false},
		{"exact needs full string", dest(1, 1, ratedomain.MatchExact, "123"), "1234", false},
		{"prefix", dest(1, 1, ratedomain.MatchPrefix, "+380"), "+380441234567", true},
		{"suffix", dest(1, 1, ratedomain.MatchSuffix, "@voip.example"), "alice@voip.example", true},
		{"suffix miss", dest(1, 1, ratedomain.MatchSuffix, "@voip.example"), "alice@voip.example.org", false},
		{"regex", dest(1, 1, ratedomain.MatchRegex, `^8(800|804)\d{7}$`), "88001234567", true},
		{"regex miss", dest(1, 1, ratedomain.MatchRegex, `^8(800|804)\d{7}$`), "88051234567", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Resolve([]ratedomain.Destination{tt.dest}, tt.called)
			if tt.match {
				require.NoError(t, err)
				assert.Equal(t, tt.dest.ID, got.ID)
				return
			}
			assert.ErrorIs(t, err, ratedomain.ErrNoDestinationMatch)
		})
	}
}

func TestResolveDestinationCompilesRegexOnce(t *testing.T) {
	m := NewDestinationMatcher()
	d := dest(1, 1, ratedomain.MatchRegex, `^1\d+`)

	for i := 0; i < 3; i++ {
		_, err := m.Resolve([]ratedomain.Destination{d}, "1234")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, m.compiledCount())

	d.MatchString = `^2\d+`
	_, err := m.Resolve([]ratedomain.Destination{d}, "2345")
	require.NoError(t, err)
	assert.Equal(t, 1, m.compiledCount())
}

func TestResolveDestinationInvalidRegex(t *testing.T) {
	m := NewDestinationMatcher()
	_, err := m.Resolve([]ratedomain.Destination{dest(1, 1, ratedomain.MatchRegex, `([`)}, "1234")
	assert.ErrorIs(t, err, ratedomain.ErrConfiguration)
}

func TestForgetDropsCompiledPatternsOfASet(t *testing.T) {
	m := NewDestinationMatcher()
	a := dest(1, 1, ratedomain.MatchRegex, `^1\d+`)
	a.SetID = 10
	b := dest(2, 1, ratedomain.MatchRegex, `^2\d+`)
	b.SetID = 20

	_, err := m.Resolve([]ratedomain.Destination{a}, "123")
	require.NoError(t, err)
	_, err = m.Resolve([]ratedomain.Destination{b}, "234")
	require.NoError(t, err)
	require.Equal(t, 2, m.compiledCount())

	m.Forget(10)
	assert.Equal(t, 1, m.compiledCount())

	m.Reset()
	assert.Zero(t, m.compiledCount())
}
