// Package client implements the router's state store on top of a
// storage.TargetStorage, i.e. PostgreSQL.
package client

import (
	"context"
	"errors"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/metrics"
	"github.com/yearn/stack-router/router"
	"github.com/yearn/stack-router/storage"
	"github.com/yearn/stack-router/storage/client/queries"
)

const moduleName = "storage_client"

// StorageClient is a router.Store backed by a storage.TargetStorage.
type StorageClient struct {
	db      storage.TargetStorage
	logger  *log.Logger
	metrics metrics.StorageMetrics
}

var _ router.Store = (*StorageClient)(nil)

// NewStorageClient creates a new storage client.
func NewStorageClient(db storage.TargetStorage, l *log.Logger) *StorageClient {
	return &StorageClient{
		db:      db,
		logger:  l.WithModule(moduleName),
		metrics: metrics.NewDefaultStorageMetrics("router", db.Name()),
	}
}

// Close closes the backing TargetStorage.
func (c *StorageClient) Close() {
	c.db.Close()
}

// Name implements router.Store.
func (c *StorageClient) Name() string {
	return c.db.Name()
}

// Authority implements router.Store.
func (c *StorageClient) Authority(ctx context.Context) (auth router.Authority, ok bool, err error) {
	timer := c.metrics.DatabaseLatencies("authority")
	defer timer.ObserveDuration()
	defer func() { c.metrics.Observe("authority", err) }()

	var governance, pending []byte
	switch err = c.db.QueryRow(ctx, queries.Authority).Scan(&governance, &pending); {
	case errors.Is(err, pgx.ErrNoRows):
		return router.Authority{}, false, nil
	case err != nil:
		return router.Authority{}, false, err
	}
	return router.Authority{
		Governance:        ethCommon.BytesToAddress(governance),
		PendingGovernance: ethCommon.BytesToAddress(pending),
	}, true, nil
}

// SetAuthority implements router.Store.
func (c *StorageClient) SetAuthority(ctx context.Context, auth router.Authority) (err error) {
	timer := c.metrics.DatabaseLatencies("set_authority")
	defer timer.ObserveDuration()
	defer func() { c.metrics.Observe("set_authority", err) }()

	batch := &storage.QueryBatch{}
	batch.Queue(queries.UpsertAuthority, auth.Governance.Bytes(), auth.PendingGovernance.Bytes())
	return c.db.SendBatch(ctx, batch)
}

// Stack implements router.Store.
func (c *StorageClient) Stack(ctx context.Context, vault ethCommon.Address) (stack []ethCommon.Address, err error) {
	timer := c.metrics.DatabaseLatencies("stack")
	defer timer.ObserveDuration()
	defer func() { c.metrics.Observe("stack", err) }()

	rows, err := c.db.Query(ctx, queries.Stack, vault.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var strategy []byte
		if err = rows.Scan(&strategy); err != nil {
			return nil, fmt.Errorf("scan stack entry: %w", err)
		}
		stack = append(stack, ethCommon.BytesToAddress(strategy))
	}
	return stack, rows.Err()
}

// SetStack implements router.Store. The old stack is deleted and the new
// one inserted in a single transaction.
func (c *StorageClient) SetStack(ctx context.Context, vault ethCommon.Address, stack []ethCommon.Address) (err error) {
	timer := c.metrics.DatabaseLatencies("set_stack")
	defer timer.ObserveDuration()
	defer func() { c.metrics.Observe("set_stack", err) }()

	batch := &storage.QueryBatch{}
	batch.Queue(queries.DeleteStack, vault.Bytes())
	for i, strategy := range stack {
		batch.Queue(queries.InsertStackEntry, vault.Bytes(), i, strategy.Bytes())
	}
	if err = c.db.SendBatch(ctx, batch); err != nil {
		c.logger.Error("failed to store stack", "vault", vault, "err", err)
		return err
	}
	return nil
}
