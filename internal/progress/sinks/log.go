package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/vacancy-crawler/internal/progress"
)

// LogSink writes each progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Site events log at debug; run
// milestones at info, failures at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageSiteDone:
			level = zapcore.DebugLevel
			fields = append(fields,
				zap.Int64("site_id", evt.SiteID),
				zap.String("site", evt.Site),
				zap.String("url", evt.URL),
				zap.Bool("success", evt.Success),
				zap.Int("links", evt.Links),
				zap.Duration("dur", evt.Dur),
			)
			if evt.ErrorKind != "" {
				fields = append(fields, zap.String("error_kind", evt.ErrorKind))
			}
		case progress.StageBatchDone, progress.StageRunStart, progress.StageRunDone:
			fields = append(fields, zap.Int("completed", evt.Completed), zap.Int("total", evt.Total))
		case progress.StageRunFailed:
			level = zapcore.WarnLevel
			fields = append(fields, zap.Int("completed", evt.Completed), zap.Int("total", evt.Total))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if ce := s.logger.Check(level, "progress event"); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
