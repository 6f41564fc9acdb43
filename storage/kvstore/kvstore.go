// Package kvstore implements the router's file-backed store on top of pogreb.
package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akrylysov/pogreb"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/cbor"

	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/metrics"
	"github.com/yearn/stack-router/router"
)

const (
	moduleName = "kvstore"

	// BackendName is the name under which the store is configured.
	BackendName = "file"
)

var governanceKey = []byte("governance")

func stackKey(vault ethCommon.Address) []byte {
	return append([]byte("stack/"), vault.Bytes()...)
}

// authorityRecord is the CBOR encoding of router.Authority.
type authorityRecord struct {
	Governance        []byte `json:"governance"`
	PendingGovernance []byte `json:"pending_governance"`
}

// Store is a router.Store kept in a pogreb database. Every write is a single
// Put, so it is atomic with respect to crashes.
type Store struct {
	db *pogreb.DB

	path    string
	logger  *log.Logger
	metrics metrics.StorageMetrics
}

var _ router.Store = (*Store)(nil)

// Open opens the store at path, creating it if needed.
func Open(path string, logger *log.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		logger:  logger.WithModule(moduleName).With("path", path),
		metrics: metrics.NewDefaultStorageMetrics("router", BackendName),
	}
	// Pogreb backs up its indices into <oldname>.bac. ".bac" becomes ".bac.bac",
	// etc. If the router loop-crashes, the filenames grow too long for the
	// filesystem and pogreb can no longer open the store.
	s.dropStaleBackups()

	s.logger.Info("opening KVStore")
	// Sync on every write; a mutation that returned must survive a crash.
	db, err := pogreb.Open(path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		return nil, fmt.Errorf("open pogreb store at %s: %w", path, err)
	}
	s.db = db
	s.logger.Info(fmt.Sprintf("KVStore has %d entries", db.Count()))
	return s, nil
}

// Deletes excessively backed-up pogreb index files.
func (s *Store) dropStaleBackups() {
	files, err := filepath.Glob(filepath.Join(s.path, "*.bac.bac"))
	if err != nil {
		s.logger.Warn("failed to glob for stale pogreb backups", "err", err)
		return
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			s.logger.Warn("failed to delete stale pogreb backup", "file", f, "err", err)
		}
	}
}

func (s *Store) get(op string, key []byte, value interface{}) (found bool, err error) {
	timer := s.metrics.DatabaseLatencies(op)
	defer timer.ObserveDuration()
	defer func() { s.metrics.Observe(op, err) }()

	raw, err := s.db.Get(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err = cbor.Unmarshal(raw, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal the value of key %q into %T: %w; raw value was %x", key, value, err, raw)
	}
	return true, nil
}

func (s *Store) put(op string, key []byte, value interface{}) (err error) {
	timer := s.metrics.DatabaseLatencies(op)
	defer timer.ObserveDuration()
	defer func() { s.metrics.Observe(op, err) }()

	return s.db.Put(key, cbor.Marshal(value))
}

// Authority implements router.Store.
func (s *Store) Authority(_ context.Context) (router.Authority, bool, error) {
	var rec authorityRecord
	found, err := s.get("authority", governanceKey, &rec)
	if err != nil || !found {
		return router.Authority{}, false, err
	}
	return router.Authority{
		Governance:        ethCommon.BytesToAddress(rec.Governance),
		PendingGovernance: ethCommon.BytesToAddress(rec.PendingGovernance),
	}, true, nil
}

// SetAuthority implements router.Store.
func (s *Store) SetAuthority(_ context.Context, auth router.Authority) error {
	return s.put("set_authority", governanceKey, authorityRecord{
		Governance:        auth.Governance.Bytes(),
		PendingGovernance: auth.PendingGovernance.Bytes(),
	})
}

// Stack implements router.Store.
func (s *Store) Stack(_ context.Context, vault ethCommon.Address) ([]ethCommon.Address, error) {
	var raw [][]byte
	found, err := s.get("stack", stackKey(vault), &raw)
	if err != nil || !found || len(raw) == 0 {
		return nil, err
	}
	stack := make([]ethCommon.Address, 0, len(raw))
	for i, b := range raw {
		if len(b) != ethCommon.AddressLength {
			return nil, fmt.Errorf("stack of vault %s: entry %d has %d bytes", vault, i, len(b))
		}
		stack = append(stack, ethCommon.BytesToAddress(b))
	}
	return stack, nil
}

// SetStack implements router.Store.
func (s *Store) SetStack(_ context.Context, vault ethCommon.Address, stack []ethCommon.Address) error {
	if len(stack) == 0 {
		return s.delete("delete_stack", stackKey(vault))
	}
	raw := make([][]byte, 0, len(stack))
	for _, strategy := range stack {
		raw = append(raw, strategy.Bytes())
	}
	return s.put("set_stack", stackKey(vault), raw)
}

func (s *Store) delete(op string, key []byte) (err error) {
	timer := s.metrics.DatabaseLatencies(op)
	defer timer.ObserveDuration()
	defer func() { s.metrics.Observe(op, err) }()

	return s.db.Delete(key)
}

// Name implements router.Store.
func (s *Store) Name() string {
	return BackendName
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.logger.Info("closing KVStore")
	return s.db.Close()
}
