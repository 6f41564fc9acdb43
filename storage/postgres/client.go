// Package postgres implements the target storage interface
// backed by PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/yearn/stack-router/common"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/storage"
)

const (
	moduleName = "postgres"
)

// Client is a client for connecting to PostgreSQL.
type Client struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ storage.TargetStorage = (*Client)(nil)

// traceLogger routes pgx's trace output into the router's logger.
type traceLogger struct {
	logger *log.Logger
}

// Log implements tracelog.Logger.
func (l *traceLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	keyvals := make([]interface{}, 0, 2*len(data)+2)
	for k, v := range data {
		keyvals = append(keyvals, k, v)
	}
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		l.logger.Debug(msg, keyvals...)
	case tracelog.LogLevelInfo:
		l.logger.Info(msg, keyvals...)
	case tracelog.LogLevelWarn:
		l.logger.Warn(msg, keyvals...)
	default:
		l.logger.Error(msg, append(keyvals, "pgx_level", level.String())...)
	}
}

// NewClient creates a new PostgreSQL client.
func NewClient(ctx context.Context, connString string, l *log.Logger) (*Client, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	// Warn and up only; Info would log every statement.
	config.ConnConfig.Tracer = &tracelog.TraceLog{
		LogLevel: tracelog.LogLevelWarn,
		Logger:   &traceLogger{logger: l.WithModule(moduleName).With("db", config.ConnConfig.Database)},
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Client{
		pool:   pool,
		logger: l.WithModule(moduleName),
	}, nil
}

// SendBatch submits a new batch of queries as an atomic transaction to PostgreSQL.
//
// Updated row counts are discarded; callers only care about atomic success
// or failure of the batch.
func (c *Client) SendBatch(ctx context.Context, batch *storage.QueryBatch) error {
	if err := c.sendBatchFast(ctx, batch); err == nil {
		return nil
	}
	// The implicit tx was reverted, so we can resubmit. This time, use the
	// slow method for better error messages.
	return c.sendBatchSlow(ctx, batch)
}

// Submits the batch in a single roundtrip. pgx reports errors poorly here: if
// _any_ query is malformed, pgx reports the _first_ query as failing.
func (c *Client) sendBatchFast(ctx context.Context, batch *storage.QueryBatch) error {
	pgxBatch := batch.AsPgxBatch()
	// SendBatch on the pool wraps the batch in an implicit tx.
	batchResults := c.pool.SendBatch(ctx, &pgxBatch)
	defer common.CloseOrLog(batchResults, c.logger)

	for i := 0; i < pgxBatch.Len(); i++ {
		if _, err := batchResults.Exec(); err != nil {
			return fmt.Errorf("query %d %v: %w", i, batch.Queries()[i], err)
		}
	}
	return nil
}

// Submits the batch one query at a time inside an explicit transaction, so
// the failing query is the one reported.
func (c *Client) sendBatchSlow(ctx context.Context, batch *storage.QueryBatch) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	for i, q := range batch.Queries() {
		if _, err = tx.Exec(ctx, q.Cmd, q.Args...); err != nil {
			return fmt.Errorf("query %d %v: %w", i, q, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		c.logger.Error("failed to commit batch",
			"error", err,
			"batch_size", batch.Len(),
		)
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Query submits a new read query to PostgreSQL.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (storage.QueryResults, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		c.logger.Error("failed to query db",
			"error", err,
			"query_cmd", sql,
			"query_args", args,
		)
		return nil, err
	}
	return rows, nil
}

// QueryRow submits a new read query for a single row to PostgreSQL.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...interface{}) storage.QueryResult {
	return c.pool.QueryRow(ctx, sql, args...)
}

// Close implements the storage.TargetStorage interface for Client.
func (c *Client) Close() {
	c.pool.Close()
}

// Name implements the storage.TargetStorage interface for Client.
func (c *Client) Name() string {
	return moduleName
}

// Wipe drops every non-system table, the migration bookkeeping included,
// in one transaction.
func (c *Client) Wipe(ctx context.Context) error {
	rows, err := c.Query(ctx, `
		SELECT quote_ident(schemaname) || '.' || quote_ident(tablename)
		FROM pg_tables
		WHERE schemaname != 'information_schema' AND schemaname NOT LIKE 'pg_%'
	`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	batch := &storage.QueryBatch{}
	for _, table := range tables {
		batch.Queue("DROP TABLE IF EXISTS " + table + " CASCADE")
	}
	if batch.Len() == 0 {
		return nil
	}
	c.logger.Info("dropping tables", "tables", tables)
	return c.SendBatch(ctx, batch)
}
