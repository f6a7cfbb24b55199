package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SentinelX/internal/domain/models"
	domrepo "SentinelX/internal/domain/repository"
	pkgch "SentinelX/pkg/clickhouse"
	applogger "SentinelX/pkg/logger"
)

const (
	commitColumns = "event_id, committed_at, view, kind, tick, status, error_kind, status_code, payload, " +
		"total_feeds, feeds_per_second, active_feeds, avg_latency_ms"
	commitPlaceholders = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	insertChunkSize    = 2000
)

// CHHistoryStore keeps every slot commit in ClickHouse. Metrics commits carry
// their counters in dedicated columns so that baselines need no JSON parsing.
type CHHistoryStore struct {
	db    *sql.DB
	table string
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCHHistoryStore(ch *pkgch.Client, table string, ttl time.Duration, l *applogger.Logger) *CHHistoryStore {
	return &CHHistoryStore{db: ch.DB(), table: table, ttl: ttl, l: l}
}

// Init creates the commit table when missing.
func (s *CHHistoryStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableQuery(s.table, s.ttl)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *CHHistoryStore) Store(ctx context.Context, ev *models.CommitEvent) error {
	return s.StoreBatch(ctx, []*models.CommitEvent{ev})
}

// StoreBatch inserts events using multi-row VALUES, chunked to bound the
// statement size.
func (s *CHHistoryStore) StoreBatch(ctx context.Context, evs []*models.CommitEvent) error {
	for start := 0; start < len(evs); start += insertChunkSize {
		end := min(start+insertChunkSize, len(evs))

		args := make([]any, 0, (end-start)*13)
		n := 0
		for _, ev := range evs[start:end] {
			if ev == nil || ev.Status == models.StatusLoading {
				continue
			}
			row, err := commitRow(ev)
			if err != nil {
				return err
			}
			args = append(args, row...)
			n++
		}
		if n == 0 {
			continue
		}

		begin := time.Now()
		if _, err := s.db.ExecContext(ctx, insertQuery(s.table, n), args...); err != nil {
			s.l.Error("clickhouse insert commits error",
				applogger.String("table", s.table),
				applogger.Int("rows", n),
				applogger.Error(err),
			)
			return fmt.Errorf("insert commits: %w", err)
		}
		s.l.Debug("clickhouse insert commits ok",
			applogger.String("table", s.table),
			applogger.Int("rows", n),
			applogger.Duration("duration_ms", time.Since(begin)),
		)
	}
	return nil
}

func (s *CHHistoryStore) MetricsBaseline(ctx context.Context, view string, at time.Time) (*models.MetricsBaseline, error) {
	q := fmt.Sprintf(`
        SELECT committed_at, total_feeds, feeds_per_second, active_feeds, avg_latency_ms
        FROM %s
        WHERE view = ? AND kind = ? AND status = ? AND committed_at <= ?
        ORDER BY committed_at DESC
        LIMIT 1
    `, s.table)

	var (
		b      models.MetricsBaseline
		active int32
	)
	err := s.db.QueryRowContext(ctx, q, view, string(models.KindMetrics), string(models.StatusSuccess), at.UTC()).
		Scan(&b.At, &b.TotalFeedsProcessed, &b.FeedsPerSecond, &active, &b.AverageLatencyMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metrics baseline: %w", err)
	}
	b.ActiveFeeds = int(active)
	return &b, nil
}

func (s *CHHistoryStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHHistoryStore) Close() error {
	return s.db.Close()
}

func createTableQuery(table string, ttl time.Duration) string {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            event_id         String,
            committed_at     DateTime64(3, 'UTC'),
            view             LowCardinality(String),
            kind             LowCardinality(String),
            tick             UInt64,
            status           LowCardinality(String),
            error_kind       LowCardinality(String),
            status_code      UInt16,
            payload          String,
            total_feeds      Int64,
            feeds_per_second Float64,
            active_feeds     Int32,
            avg_latency_ms   Float64
        )
        ENGINE = ReplacingMergeTree
        ORDER BY (view, kind, committed_at, event_id)`, table)
	if days := int(ttl / (24 * time.Hour)); days > 0 {
		q += fmt.Sprintf("\n        TTL toDateTime(committed_at) + INTERVAL %d DAY", days)
	}
	return q
}

func insertQuery(table string, rows int) string {
	values := make([]string, rows)
	for i := range values {
		values[i] = commitPlaceholders
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, commitColumns, strings.Join(values, ","))
}

// commitRow flattens ev in commitColumns order.
func commitRow(ev *models.CommitEvent) ([]any, error) {
	payload := ""
	if ev.Value != nil {
		b, err := json.Marshal(ev.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", ev.Kind, err)
		}
		payload = string(b)
	}

	var (
		errKind    string
		statusCode uint16
	)
	if ev.Err != nil {
		errKind = string(ev.Err.Kind)
		statusCode = uint16(ev.Err.StatusCode)
	}

	var (
		total  int64
		fps    float64
		active int32
		lat    float64
	)
	if m, ok := ev.Value.(*models.IndexerMetricsSnapshot); ok && m != nil && ev.Status == models.StatusSuccess {
		total = m.TotalFeedsProcessed
		fps = m.FeedsPerSecond
		active = int32(m.ActiveFeeds)
		lat = m.AverageLatencyMs
	}

	return []any{
		ev.ID,
		ev.Committed.UTC(),
		ev.View,
		string(ev.Kind),
		ev.Tick,
		string(ev.Status),
		errKind,
		statusCode,
		payload,
		total,
		fps,
		active,
		lat,
	}, nil
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)
