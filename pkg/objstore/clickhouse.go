package objstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"DualSignal/pkg/clickhouse"
)

// ClickHouseStore keeps objects as rows of a ReplacingMergeTree table; the highest version wins.
type ClickHouseStore struct {
	client *clickhouse.Client
	table  string
	now    func() time.Time
}

// NewClickHouseStore ensures the objects table exists.
func NewClickHouseStore(ctx context.Context, client *clickhouse.Client, opts ...ClickHouseOption) (*ClickHouseStore, error) {
	cfg := &ClickHouseConfig{Table: "objects"}
	for _, opt := range opts {
		opt(cfg)
	}
	s := &ClickHouseStore{client: client, table: cfg.Table, now: time.Now}
	if err := client.InitSchema(ctx, []string{s.schema()}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseStore) schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key String,
	body String,
	version UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY key`, s.table)
}

func (s *ClickHouseStore) Get(ctx context.Context, key string) ([]byte, error) {
	q := fmt.Sprintf(`SELECT body FROM %s FINAL WHERE key = ? ORDER BY version DESC LIMIT 1`, s.table)
	var body string
	err := s.client.DB().QueryRowContext(ctx, q, key).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("clickhouse get %s: %w", key, err)
	}
	return []byte(body), nil
}

func (s *ClickHouseStore) Put(ctx context.Context, key string, body []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (key, body, version) VALUES (?, ?, ?)`, s.table)
	if _, err := s.client.DB().ExecContext(ctx, q, key, string(body), uint64(s.now().UnixNano())); err != nil {
		return fmt.Errorf("clickhouse put %s: %w", key, err)
	}
	return nil
}

func (s *ClickHouseStore) List(ctx context.Context, prefix string) ([]string, error) {
	q := fmt.Sprintf(`SELECT DISTINCT key FROM %s WHERE startsWith(key, ?) ORDER BY key`, s.table)
	rows, err := s.client.DB().QueryContext(ctx, q, prefix)
	if err != nil {
		return nil, fmt.Errorf("clickhouse list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseStore) Close() error {
	return s.client.Close()
}
