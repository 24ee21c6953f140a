package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	in := guild(t)
	require.NoError(t, c.Register(in))
	assert.Error(t, c.Register(in), "duplicate id")

	got, err := c.Tradeable("GUILD")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = c.Get("NOPE")
	assert.ErrorIs(t, err, ErrInstrumentUnknown)
	_, err = c.Tradeable("NOPE")
	assert.ErrorIs(t, err, ErrInstrumentUnknown)

	require.NoError(t, c.SetStatus("GUILD", Halted))
	_, err = c.Tradeable("GUILD")
	assert.ErrorIs(t, err, ErrInstrumentHalted)

	// reads still work while halted
	got, err = c.Get("GUILD")
	require.NoError(t, err)
	assert.Equal(t, Halted, got.Status)

	require.NoError(t, c.SetStatus("GUILD", Active))
	require.NoError(t, c.SetStatus("GUILD", Delisted))
	assert.Error(t, c.SetStatus("GUILD", Active), "delisted is terminal")
}

func TestCatalogListSorted(t *testing.T) {
	c := NewCatalog()
	for _, id := range []string{"ZED", "ALPHA", "MID"} {
		in := guild(t)
		in.ID = id
		require.NoError(t, c.Register(in))
	}
	var got []string
	for _, in := range c.List() {
		got = append(got, in.ID)
	}
	assert.Equal(t, []string{"ALPHA", "MID", "ZED"}, got)
	assert.Equal(t, 3, c.Count())
	assert.True(t, c.Exists("MID"))
}
