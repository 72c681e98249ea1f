package export

import (
	"context"
	"errors"

	"portwatch/logging"
	"portwatch/metrics"
)

// Service writes artifacts and records them in the history sink. A failing
// sink never fails the export.
type Service struct {
	exporter *Exporter
	sink     HistorySink
	metrics  *metrics.Metrics
}

// NewService wires an exporter to a history sink. A nil sink logs records.
func NewService(exporter *Exporter, sink HistorySink, m *metrics.Metrics) *Service {
	if sink == nil {
		sink = NewLogHistory(logging.Logger())
	}
	return &Service{exporter: exporter, sink: sink, metrics: m}
}

// Export writes the artifact and records it on behalf of callerID.
func (s *Service) Export(ctx context.Context, req Request, callerID string) (*Artifact, error) {
	logger := logging.Logger().With("job_id", req.JobID, "format", req.Format)

	artifact, err := s.exporter.Export(req)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNoResults) {
			outcome = "empty"
		}
		s.metrics.ExportRecorded(string(req.Format), outcome)
		logger.Warn("export failed", "error", err)
		return nil, err
	}
	s.metrics.ExportRecorded(string(req.Format), "success")
	logger.Info("scan results exported", "path", artifact.Path, "size", artifact.Size, "open_ports", artifact.OpenPorts)

	if err := s.sink.Record(ctx, NewHistoryRecord(artifact, callerID)); err != nil {
		logger.Error("failed to record export history", "export_id", artifact.ID, "error", err)
	}
	return artifact, nil
}
