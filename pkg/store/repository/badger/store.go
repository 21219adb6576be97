// Package badger is a persistent repository.Store backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/packrat/davgate/pkg/store/repository"
)

// Store implements repository.Store using BadgerDB for persistence.
//
// Records are CBOR-encoded under namespaced keys (see keys.go). Secondary
// indexes are maintained in the same transaction as the record they point
// to, so a committed record is always reachable through its indexes.
//
// Thread Safety:
// Reads run in concurrent BadgerDB read transactions. Writes are serialized
// by writeMu: version numbering reads the current latest version and then
// writes the next one, which BadgerDB's conflict detection does not cover
// because the new key was never read.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	writeMu sync.Mutex

	now func() time.Time
}

// Config contains configuration for creating a BadgerDB repository.
type Config struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests, demos)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// New opens (or creates) a BadgerDB repository.
//
// Parameters:
//   - ctx: Context for cancellation during initialization
//   - config: Database location and cache sizing
//
// Returns:
//   - *Store: A store ready for concurrent use
//   - error: Error if the database cannot be opened
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger repository requires db_path")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	// Records are small; compression is not worth the CPU
	opts = opts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	seq, err := db.GetSequence([]byte(keySequence), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease id sequence: %w", err)
	}

	return &Store{db: db, seq: seq, now: time.Now}, nil
}

// Close releases the id sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("failed to release id sequence: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// allocID returns the next id. Sequence values start at 0; ids start at 1.
func (s *Store) allocID() (int64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id: %w", err)
	}
	return int64(n) + 1, nil
}

// ============================================================================
// Transaction helpers
// ============================================================================

// getRecord loads and decodes the record at key, mapping a missing key to a
// repository not-found error.
func getRecord(txn *badger.Txn, key []byte, v any, entity string, id int64) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return repository.NotFound(entity, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s %d: %w", entity, id, err)
	}
	return item.Value(func(val []byte) error {
		return decode(val, v)
	})
}

func putRecord(txn *badger.Txn, key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// scanTrailingIDs returns the ids encoded at the end of every key under
// prefix, in key order.
func scanTrailingIDs(txn *badger.Txn, prefix []byte) ([]int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []int64
	for it.Rewind(); it.Valid(); it.Next() {
		id, err := trailingID(it.Item().Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// scanValueIDs returns the id values stored under prefix, in key order.
func scanValueIDs(txn *badger.Txn, prefix []byte) ([]int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []int64
	for it.Rewind(); it.Valid(); it.Next() {
		var id int64
		err := it.Item().Value(func(val []byte) error {
			var err error
			id, err = decodeID(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// latestVersionID returns the id of the highest-numbered version of an asset,
// or 0 when the asset has no versions.
func latestVersionID(txn *badger.Txn, idAsset int64) (int64, error) {
	prefix := indexPrefix(prefixAssetVersionIndex, idAsset)

	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	it.Seek(seek)
	if !it.Valid() {
		return 0, nil
	}

	var id int64
	err := it.Item().Value(func(val []byte) error {
		var err error
		id, err = decodeID(val)
		return err
	})
	return id, err
}

func (s *Store) latestVersion(txn *badger.Txn, idAsset int64) (*repository.AssetVersion, error) {
	id, err := latestVersionID(txn, idAsset)
	if err != nil || id == 0 {
		return nil, err
	}
	var v repository.AssetVersion
	if err := getRecord(txn, keyAssetVersion(id), &v, repository.EntityAssetVersion, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ============================================================================
// Reader
// ============================================================================

func (s *Store) GetSystemObject(ctx context.Context, idSystemObject int64) (*repository.SystemObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var so repository.SystemObject
	err := s.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, keySystemObject(idSystemObject), &so, repository.EntitySystemObject, idSystemObject)
	})
	if err != nil {
		return nil, err
	}
	return &so, nil
}

func (s *Store) GetAsset(ctx context.Context, idAsset int64) (*repository.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var asset repository.Asset
	err := s.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, keyAsset(idAsset), &asset, repository.EntityAsset, idAsset)
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *Store) GetAssetVersion(ctx context.Context, idAssetVersion int64) (*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var v repository.AssetVersion
	err := s.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, keyAssetVersion(idAssetVersion), &v, repository.EntityAssetVersion, idAssetVersion)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetLatestAssetVersion(ctx context.Context, idAsset int64) (*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var latest *repository.AssetVersion
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := s.latestVersion(txn, idAsset)
		if err != nil {
			return err
		}
		if v == nil {
			return repository.NotFound(repository.EntityAsset, idAsset)
		}
		latest = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (s *Store) GetLatestAssetVersionsForSystemObject(ctx context.Context, idSystemObject int64) ([]*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]*repository.AssetVersion, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := exists(txn, keySystemObject(idSystemObject))
		if err != nil {
			return err
		}
		if !ok {
			return repository.NotFound(repository.EntitySystemObject, idSystemObject)
		}

		assetIDs, err := scanTrailingIDs(txn, indexPrefix(prefixAssetOwnerIndex, idSystemObject))
		if err != nil {
			return err
		}
		for _, idAsset := range assetIDs {
			v, err := s.latestVersion(txn, idAsset)
			if err != nil {
				return err
			}
			if v != nil {
				result = append(result, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetAssetVersionsForSystemObjectVersion(ctx context.Context, idSystemObjectVersion int64) ([]*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]*repository.AssetVersion, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		var snap repository.SystemObjectVersion
		if err := getRecord(txn, keySystemObjectVersion(idSystemObjectVersion), &snap,
			repository.EntitySystemObjectVersion, idSystemObjectVersion); err != nil {
			return err
		}
		for _, id := range snap.AssetVersionIDs {
			var v repository.AssetVersion
			err := getRecord(txn, keyAssetVersion(id), &v, repository.EntityAssetVersion, id)
			if repository.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			result = append(result, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) reportsForWorkflows(txn *badger.Txn, workflowIDs []int64) ([]*repository.WorkflowReport, error) {
	result := make([]*repository.WorkflowReport, 0)
	for _, idWorkflow := range workflowIDs {
		reportIDs, err := scanTrailingIDs(txn, indexPrefix(prefixWorkflowReportIndex, idWorkflow))
		if err != nil {
			return nil, err
		}
		for _, id := range reportIDs {
			var r repository.WorkflowReport
			if err := getRecord(txn, keyWorkflowReport(id), &r, repository.EntityWorkflowReport, id); err != nil {
				return nil, err
			}
			result = append(result, &r)
		}
	}
	return result, nil
}

func (s *Store) GetWorkflowReportsForWorkflow(ctx context.Context, idWorkflow int64) ([]*repository.WorkflowReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []*repository.WorkflowReport
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		result, err = s.reportsForWorkflows(txn, []int64{idWorkflow})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetWorkflowReportsForWorkflowSet(ctx context.Context, idWorkflowSet int64) ([]*repository.WorkflowReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []*repository.WorkflowReport
	err := s.db.View(func(txn *badger.Txn) error {
		workflowIDs, err := scanTrailingIDs(txn, indexPrefix(prefixWorkflowSetIndex, idWorkflowSet))
		if err != nil {
			return err
		}
		result, err = s.reportsForWorkflows(txn, workflowIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetWorkflowReport(ctx context.Context, idWorkflowReport int64) (*repository.WorkflowReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r repository.WorkflowReport
	err := s.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, keyWorkflowReport(idWorkflowReport), &r, repository.EntityWorkflowReport, idWorkflowReport)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetJobRun(ctx context.Context, idJobRun int64) (*repository.JobRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var jr repository.JobRun
	err := s.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, keyJobRun(idJobRun), &jr, repository.EntityJobRun, idJobRun)
	})
	if err != nil {
		return nil, err
	}
	return &jr, nil
}

var _ repository.Store = (*Store)(nil)
