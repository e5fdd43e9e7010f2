package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsLightModeOn(t *testing.T) {
	c := DefaultConfig()
	require.True(t, c.LightMode)
	require.False(t, c.Verbose)
}

func TestNetOptionsProducesTwoOptions(t *testing.T) {
	c := DefaultConfig()
	opts := c.NetOptions()
	require.Len(t, opts, 2)
}
