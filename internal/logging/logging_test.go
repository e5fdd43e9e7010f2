package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuildsAWorkingLogger(t *testing.T) {
	l, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Info("hello")
}

func TestNopNeverPanics(t *testing.T) {
	require.NotPanics(t, func() { Nop().Info("discarded") })
}
