package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// Format is an Export output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var csvHeader = []string{
	"query_id", "timestamp", "patient_id", "query_text", "response_summary",
	"confidence_score", "total_time_ms", "success", "error",
}

// Export renders every entry matching filter as format.
func (l *Logger) Export(format Format, filter Filter) ([]byte, error) {
	entries := l.SearchQueries(filter, 0)

	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "audit.Export", "marshal audit entries", err)
		}
		return b, nil
	case FormatCSV:
		return exportCSV(entries)
	default:
		return nil, xerrors.Validation("audit.Export", fmt.Sprintf("unsupported export format %q", format))
	}
}

func exportCSV(entries []types.AuditEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "audit.Export", "write csv header", err)
	}
	for _, e := range entries {
		errMsg := ""
		if e.Error != nil {
			errMsg = *e.Error
		}
		row := []string{
			e.QueryID,
			e.Timestamp.Format(timeLayout),
			e.PatientID,
			e.QueryText,
			e.ResponseSummary,
			strconv.FormatFloat(e.ConfidenceScore, 'f', 4, 64),
			strconv.FormatInt(e.TotalTimeMs, 10),
			strconv.FormatBool(e.Success),
			errMsg,
		}
		if err := w.Write(row); err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "audit.Export", "write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "audit.Export", "flush csv", err)
	}
	return buf.Bytes(), nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
