/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log"
)

func TestRecorder(t *testing.T) {
	recorder := NewRecorder()
	recorder.Info("first", log.String("key", "value"))
	recorder.With(log.Int("n", 42)).Error("second")
	recorder.Debugf("formatted %d", 7)

	entries := recorder.Entries()
	require.Len(t, entries, 3)

	entry, found := recorder.FindEntry("first")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	field, found := entry.FindField("key")
	require.True(t, found)
	require.Equal(t, "value", string(field.Bytes))

	entry, found = recorder.FindEntry("second")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	field, found = entry.FindField("n")
	require.True(t, found)
	require.Equal(t, int64(42), field.Int)

	entry, found = recorder.FindEntry("formatted 7")
	require.True(t, found)
	require.Equal(t, log.LevelDebug, entry.Level)

	_, found = recorder.FindEntry("missing")
	require.False(t, found)
}
