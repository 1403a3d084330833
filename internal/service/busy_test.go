package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusyFlag_RejectsOverlap(t *testing.T) {
	var b BusyFlag
	assert.False(t, b.Busy())

	release, err := b.Acquire()
	require.NoError(t, err)
	assert.True(t, b.Busy())

	_, err = b.Acquire()
	assert.ErrorIs(t, err, ErrBusy)

	release()
	assert.False(t, b.Busy())

	release2, err := b.Acquire()
	require.NoError(t, err)
	release2()
}
