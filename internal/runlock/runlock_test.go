package runlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	// reacquirable after release
	l2, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, l2.Release())
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	_, err = Acquire(dir)
	assert.ErrorIs(t, err, ErrHeld)
}

func TestDistinctDirsDoNotContend(t *testing.T) {
	a, err := Acquire(t.TempDir())
	require.NoError(t, err)
	defer a.Release()

	b, err := Acquire(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, b.Release())
}
