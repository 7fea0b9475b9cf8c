package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/vacancy-crawler/internal/progress"
)

func TestLogSinkWritesStructuredFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run", TS: time.Now(), Stage: progress.StageSiteDone, SiteID: 7, Site: "Ede", ErrorKind: "fetch"},
		{RunID: "run", TS: time.Now(), Stage: progress.StageRunFailed, Completed: 5, Total: 10, Note: "run interrupted"},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	site := entries[0].ContextMap()
	require.Equal(t, "run", site["run_id"])
	require.Equal(t, int64(7), site["site_id"])
	require.Equal(t, "fetch", site["error_kind"])
	require.Equal(t, zap.DebugLevel, entries[0].Level)

	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, "run interrupted", entries[1].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
