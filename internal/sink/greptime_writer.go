package sink

import (
	"context"
	"log/slog"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// GreptimeWriter ships path rows to GreptimeDB via the ingester client.
type GreptimeWriter struct {
	client *greptime.Client
	table  string
	log    *slog.Logger
}

// NewGreptimeWriter creates a writer for the given endpoint and table.
func NewGreptimeWriter(endpoint, database, tableName string, log *slog.Logger) (*GreptimeWriter, error) {
	if database == "" {
		database = "public"
	}
	if tableName == "" {
		tableName = "path_telemetry"
	}
	cfg := greptime.NewConfig(endpoint).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeWriter{client: client, table: tableName, log: log}, nil
}

// Write inserts a single row.
func (w *GreptimeWriter) Write(row PathRow) error {
	return w.WriteBatch([]PathRow{row})
}

// WriteBatch inserts multiple rows.
func (w *GreptimeWriter) WriteBatch(rows []PathRow) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("target", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("hop", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("host", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("loss_pct", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("avg_ms", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("best_ms", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("last_ms", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, r := range rows {
		err := tbl.AddRow(r.Target, int64(r.Hop), r.Host, r.LossPct, r.AvgMs, r.BestMs, r.LastMs, r.Timestamp)
		if err != nil {
			return err
		}
	}

	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.log.Error("greptime write failed", "rows", len(rows), "err", err)
		return err
	}
	return nil
}
