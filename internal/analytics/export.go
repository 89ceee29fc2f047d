package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
)

// ExportHeader is the fixed column order of the CSV export.
var ExportHeader = []string{
	"id", "session_id", "capability", "protocol_type", "provider_id", "model_name",
	"attempt_index", "retry_index", "success", "error_kind", "error_message",
	"latency_ms", "created_at",
}

// ExportCSV writes every attempt matching filter as CSV and returns the row count.
func (s *service) ExportCSV(ctx context.Context, w io.Writer, filter domain.AttemptFilter) (int, error) {
	entries, err := s.Query(ctx, filter)
	if err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := writer.Write(attemptRow(entry)); err != nil {
			return i, fmt.Errorf("write csv row %d: %w", entry.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return len(entries), fmt.Errorf("flush csv: %w", err)
	}
	return len(entries), nil
}

func attemptRow(a domain.AttemptLog) []string {
	return []string{
		strconv.FormatInt(a.ID, 10),
		a.SessionID,
		string(a.Capability),
		string(a.ProtocolType),
		a.ProviderID,
		a.ModelName,
		strconv.Itoa(a.AttemptIndex),
		strconv.Itoa(a.RetryIndex),
		strconv.FormatBool(a.Success),
		string(a.ErrorKind),
		a.ErrorMessage,
		strconv.FormatInt(a.LatencyMS, 10),
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
