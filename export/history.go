package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// HistoryRecord is the persisted description of one export.
type HistoryRecord struct {
	ID            string    `json:"id"`
	JobID         string    `json:"scan_id"`
	TargetHost    string    `json:"target_host"`
	Format        Format    `json:"export_format"`
	FilePath      string    `json:"file_path"`
	FileSize      int64     `json:"file_size"`
	ScanDate      time.Time `json:"scan_date"`
	ExportDate    time.Time `json:"export_date"`
	PortCount     int       `json:"port_count"`
	OpenPortCount int       `json:"open_port_count"`
	Summary       string    `json:"summary"`
	CallerID      string    `json:"user_id,omitempty"`
}

// NewHistoryRecord describes artifact a, exported on behalf of callerID.
func NewHistoryRecord(a *Artifact, callerID string) HistoryRecord {
	return HistoryRecord{
		ID:            a.ID,
		JobID:         a.JobID,
		TargetHost:    a.TargetHost,
		Format:        a.Format,
		FilePath:      a.Path,
		FileSize:      a.Size,
		ScanDate:      a.ScanDate,
		ExportDate:    a.GeneratedAt,
		PortCount:     a.TotalPorts,
		OpenPortCount: a.OpenPorts,
		Summary:       a.Summary,
		CallerID:      callerID,
	}
}

// HistorySink accepts export records. Implementations may fail; callers
// treat failures as non-fatal.
type HistorySink interface {
	Record(ctx context.Context, rec HistoryRecord) error
}

// HistoryReader reads back recorded exports.
type HistoryReader interface {
	List(ctx context.Context, callerID string, limit int64) ([]HistoryRecord, error)
	Get(ctx context.Context, id string) (HistoryRecord, error)
}

// ErrRecordNotFound indicates the export record doesn't exist in the store.
var ErrRecordNotFound = errors.New("export record not found")

const (
	allExportsKey  = "exports:all"
	historyMaxSize = 1000
)

// RedisHistory keeps export records in Redis: one hash per record plus a
// global list and a per-caller list of record ids, newest first.
type RedisHistory struct {
	client *redis.Client
}

// NewRedisHistory constructs a Redis-backed history store.
func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client}
}

func (h *RedisHistory) recordKey(id string) string {
	return fmt.Sprintf("export:%s", id)
}

func (h *RedisHistory) callerKey(callerID string) string {
	return fmt.Sprintf("exports:caller:%s", callerID)
}

// Record persists rec and indexes it.
func (h *RedisHistory) Record(ctx context.Context, rec HistoryRecord) error {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, h.recordKey(rec.ID), serializeRecord(rec))
		pipe.LPush(ctx, allExportsKey, rec.ID)
		pipe.LTrim(ctx, allExportsKey, 0, historyMaxSize-1)
		if rec.CallerID != "" {
			pipe.LPush(ctx, h.callerKey(rec.CallerID), rec.ID)
			pipe.LTrim(ctx, h.callerKey(rec.CallerID), 0, historyMaxSize-1)
		}
		return nil
	})
	return err
}

// List returns up to limit records, newest first. An empty callerID lists
// every record.
func (h *RedisHistory) List(ctx context.Context, callerID string, limit int64) ([]HistoryRecord, error) {
	if limit <= 0 || limit > historyMaxSize {
		limit = historyMaxSize
	}
	key := allExportsKey
	if callerID != "" {
		key = h.callerKey(callerID)
	}

	ids, err := h.client.LRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]HistoryRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := h.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get retrieves a record by id.
func (h *RedisHistory) Get(ctx context.Context, id string) (HistoryRecord, error) {
	res, err := h.client.HGetAll(ctx, h.recordKey(id)).Result()
	if err != nil {
		return HistoryRecord{}, err
	}
	if len(res) == 0 {
		return HistoryRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return deserializeRecord(res)
}

func serializeRecord(rec HistoryRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":              rec.ID,
		"scan_id":         rec.JobID,
		"target_host":     rec.TargetHost,
		"export_format":   string(rec.Format),
		"file_path":       rec.FilePath,
		"file_size":       rec.FileSize,
		"scan_date":       rec.ScanDate.Format(time.RFC3339Nano),
		"export_date":     rec.ExportDate.Format(time.RFC3339Nano),
		"port_count":      rec.PortCount,
		"open_port_count": rec.OpenPortCount,
		"summary":         rec.Summary,
		"user_id":         rec.CallerID,
	}
}

func deserializeRecord(data map[string]string) (HistoryRecord, error) {
	rec := HistoryRecord{
		ID:         data["id"],
		JobID:      data["scan_id"],
		TargetHost: data["target_host"],
		Format:     Format(data["export_format"]),
		FilePath:   data["file_path"],
		Summary:    data["summary"],
		CallerID:   data["user_id"],
	}

	var err error
	if raw := data["file_size"]; raw != "" {
		if rec.FileSize, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return HistoryRecord{}, err
		}
	}
	if raw := data["port_count"]; raw != "" {
		if rec.PortCount, err = strconv.Atoi(raw); err != nil {
			return HistoryRecord{}, err
		}
	}
	if raw := data["open_port_count"]; raw != "" {
		if rec.OpenPortCount, err = strconv.Atoi(raw); err != nil {
			return HistoryRecord{}, err
		}
	}
	if raw := data["scan_date"]; raw != "" {
		if rec.ScanDate, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return HistoryRecord{}, err
		}
	}
	if raw := data["export_date"]; raw != "" {
		if rec.ExportDate, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return HistoryRecord{}, err
		}
	}
	return rec, nil
}

// LogHistory is a sink that only writes records to the structured log. It is
// used when no Redis server is configured.
type LogHistory struct {
	logger *slog.Logger
}

// NewLogHistory returns a sink logging through logger.
func NewLogHistory(logger *slog.Logger) *LogHistory {
	return &LogHistory{logger: logger}
}

// Record implements HistorySink.
func (h *LogHistory) Record(ctx context.Context, rec HistoryRecord) error {
	h.logger.InfoContext(ctx, "export recorded",
		"export_id", rec.ID,
		"job_id", rec.JobID,
		"target", rec.TargetHost,
		"format", rec.Format,
		"file", rec.FilePath,
		"size", rec.FileSize,
		"open_ports", rec.OpenPortCount,
		"caller_id", rec.CallerID,
	)
	return nil
}
