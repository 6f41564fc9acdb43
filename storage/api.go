// Package storage defines storage interfaces.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// QueryResults represents the results from a read query.
type QueryResults = pgx.Rows

// QueryResult represents the result from a read query.
type QueryResult = pgx.Row

// BatchItem is a single queued query.
type BatchItem struct {
	Cmd  string
	Args []interface{}
}

func (i BatchItem) String() string {
	return fmt.Sprintf("%q %v", i.Cmd, i.Args)
}

// QueryBatch represents a batch of queries to be executed atomically.
// Unlike a bare pgx.Batch, it remembers the queued queries so that a failed
// batch can be retried one statement at a time and reported precisely.
type QueryBatch struct {
	items []BatchItem
}

// Queue adds a query to the batch.
func (b *QueryBatch) Queue(cmd string, args ...interface{}) {
	b.items = append(b.items, BatchItem{Cmd: cmd, Args: args})
}

// Len returns the number of queued queries.
func (b *QueryBatch) Len() int {
	return len(b.items)
}

// Queries returns the queued queries in order.
func (b *QueryBatch) Queries() []BatchItem {
	return b.items
}

// AsPgxBatch converts the batch to a pgx.Batch.
func (b *QueryBatch) AsPgxBatch() pgx.Batch {
	pgxBatch := pgx.Batch{}
	for _, item := range b.items {
		pgxBatch.Queue(item.Cmd, item.Args...)
	}
	return pgxBatch
}

// TargetStorage defines an interface for reading and writing router state.
type TargetStorage interface {
	// SendBatch sends a batch of queries to be applied to target storage.
	SendBatch(ctx context.Context, batch *QueryBatch) error

	// Query submits a query to fetch data from target storage.
	Query(ctx context.Context, sql string, args ...interface{}) (QueryResults, error)

	// QueryRow submits a query to fetch a single row of data from target storage.
	QueryRow(ctx context.Context, sql string, args ...interface{}) QueryResult

	// Wipe removes all contents of the database.
	Wipe(ctx context.Context) error

	// Close shuts down the storage client.
	Close()

	// Name returns the name of the target storage.
	Name() string
}
