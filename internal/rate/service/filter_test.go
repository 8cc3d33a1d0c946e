package service

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32(v uint32) *uint32 { return &v }

func TestResolveFilter(t *testing.T) {
	filters := []ratedomain.Filter{
		{ID: 30},
		{ID: 20, NASPortType: u32(15), ServiceType: u32(2)},
		{ID: 10, NASPortType: u32(5), FramedProtocol: u32(1)},
	}

	t.Run("first full match by id", func(t *testing.T) {
		got, err := ResolveFilter(filters, ratedomain.SessionAttributes{
			NASPortType: u32(15), ServiceType: u32(2), FramedProtocol: u32(1),
		})
		require.NoError(t, err)
		assert.Equal(t, snowflake.ID(20), got.ID)
	})

	t.Run("wildcard filter catches the rest", func(t *testing.T) {
		got, err := ResolveFilter(filters, ratedomain.SessionAttributes{NASPortType: u32(19)})
		require.NoError(t, err)
		assert.Equal(t, snowflake.ID(30), got.ID)
	})

	t.Run("missing session attribute does not satisfy a requirement", func(t *testing.T) {
		got, err := ResolveFilter(filters[1:], ratedomain.SessionAttributes{NASPortType: u32(5)})
		assert.Nil(t, got)
		assert.ErrorIs(t, err, ratedomain.ErrNoFilterMatch)
	})

	t.Run("empty set", func(t *testing.T) {
		_, err := ResolveFilter(nil, ratedomain.SessionAttributes{})
		assert.ErrorIs(t, err, ratedomain.ErrNoMatch)
	})
}
