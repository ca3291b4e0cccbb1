package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-loader/internal/progress"
)

// LogSink writes one structured log line per progress event. Resource
// events use the task label as the message subject so the log reads like a
// task list.
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("site", evt.Site),
			zap.String("url", evt.URL),
		}
		switch evt.Stage {
		case progress.StageResourceStart:
			s.logger.Debug("downloading "+evt.Label, fields...)
		case progress.StageResourceDone:
			fields = append(fields,
				zap.Int64("bytes", evt.Bytes),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Info("downloaded "+evt.Label, fields...)
		case progress.StageResourceError:
			fields = append(fields, zap.String("error", evt.Note), zap.Duration("dur", evt.Dur))
			s.logger.Warn("failed "+evt.Label, fields...)
		case progress.StagePageState:
			s.logger.Debug("page state", append(fields, zap.String("state", evt.Note))...)
		case progress.StagePageError:
			fields = append(fields, zap.String("error", evt.Note), zap.Duration("dur", evt.Dur))
			s.logger.Warn("page failed", fields...)
		case progress.StagePageDone:
			s.logger.Info("page saved", append(fields, zap.Duration("dur", evt.Dur))...)
		default:
			s.logger.Info("page started", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
