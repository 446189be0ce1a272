/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefit/aithrottle/log"
)

func TestRecorder(t *testing.T) {
	recorder := NewRecorder()
	logger := recorder.With(log.String("component", "limiter"))
	logger.Info("request admitted", log.Int("priority", 3))
	logger.WithLevel(log.LevelWarn).Info("ignored")
	logger.Warnf("backoff entered for %s", "2s")

	require.Len(t, recorder.Entries(), 2)

	entry, found := recorder.FindEntry("request admitted")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	field, found := entry.FindField("priority")
	require.True(t, found)
	require.EqualValues(t, 3, field.Int)
	field, found = entry.FindField("component")
	require.True(t, found)
	require.Equal(t, "limiter", string(field.Bytes))

	warns := recorder.FindAllEntriesByFilter(func(e RecordedEntry) bool { return e.Level == log.LevelWarn })
	require.Len(t, warns, 1)
	require.Equal(t, "backoff entered for 2s", warns[0].Text)

	recorder.Reset()
	require.Empty(t, recorder.Entries())
}
