// Package telemetry provides observability instrumentation for camline.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics, and a lightweight notification
// event bus consumed by the presentation layer.
//
// Initialize at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Component loggers carry the order and job context:
//
//	logger := tel.Logger.NewComponentLogger("pipeline")
//	logger.WithOrderID(orderID).WithJobID(jobID).Info("job created")
//
// Key metrics exposed (when enabled, at /metrics):
//
//   - camline_autosaves_total{result}
//   - camline_recalculations_total{result}
//   - camline_jobs_created_total{kind}
//   - camline_poll_attempts{kind,outcome}
//   - camline_stage_duration_seconds{kind,status}
//   - camline_active_polls
package telemetry
