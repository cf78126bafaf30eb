package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMachine(t *testing.T) {
	t.Parallel()

	var m statusMachine
	assert.Equal(t, StatusIdle, m.load())

	cur, ok := m.admit(StatusImporting)
	assert.True(t, ok)
	assert.Equal(t, StatusImporting, cur)

	cur, ok = m.admit(StatusExporting)
	assert.False(t, ok)
	assert.Equal(t, StatusImporting, cur)

	// Releasing a phase that isn't current is a no-op.
	m.release(StatusExporting)
	assert.Equal(t, StatusImporting, m.load())

	m.release(StatusImporting)
	assert.Equal(t, StatusIdle, m.load())

	assert.True(t, m.dispose())
	assert.False(t, m.dispose())

	cur, ok = m.admit(StatusCopying)
	assert.False(t, ok)
	assert.Equal(t, StatusDisposed, cur)
	m.release(StatusCopying)
	assert.Equal(t, StatusDisposed, m.load())
}

func TestStatusStrings(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "idle"},
		{StatusInitializing, "initializing"},
		{StatusImporting, "importing"},
		{StatusExporting, "exporting"},
		{StatusCopying, "copying"},
		{StatusDisposed, "disposed"},
		{Status(42), "unknown"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, tc.status.String())
	}

	assert.Equal(t, "null", ResultNull.String())
	assert.Equal(t, "busy", ResultBusy.String())
	assert.Equal(t, "error", ResultError.String())
	assert.Equal(t, "ok", ResultOK.String())
}
