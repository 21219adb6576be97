package badger

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/packrat/davgate/pkg/store/repository"
)

func (s *Store) CreateSystemObject(ctx context.Context, so *repository.SystemObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return err
	}
	record := *so
	record.IDSystemObject = id

	err = s.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, keySystemObject(id), &record)
	})
	if err != nil {
		return err
	}
	so.IDSystemObject = id
	return nil
}

func (s *Store) CreateAsset(ctx context.Context, asset *repository.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if asset.FileName == "" {
		return repository.InvalidArgument(repository.EntityAsset, "file name is required")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return err
	}
	record := *asset
	record.IDAsset = id
	nameKey := keyAssetNameIndex(asset.IDSystemObjectOwner, repository.AssetKey(asset.FilePath, asset.FileName))

	err = s.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, keySystemObject(asset.IDSystemObjectOwner))
		if err != nil {
			return err
		}
		if !ok {
			return repository.NotFound(repository.EntitySystemObject, asset.IDSystemObjectOwner)
		}

		taken, err := exists(txn, nameKey)
		if err != nil {
			return err
		}
		if taken {
			return &repository.Error{
				Code:    repository.CodeAlreadyExists,
				Message: "asset " + asset.FileName + " already exists",
				Entity:  repository.EntityAsset,
			}
		}

		if err := putRecord(txn, keyAsset(id), &record); err != nil {
			return err
		}
		if err := txn.Set(keyAssetOwnerIndex(asset.IDSystemObjectOwner, id), nil); err != nil {
			return err
		}
		return txn.Set(nameKey, encodeID(id))
	})
	if err != nil {
		return err
	}
	asset.IDAsset = id
	return nil
}

func (s *Store) FindAsset(ctx context.Context, idSystemObjectOwner int64, filePath, fileName string) (*repository.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var asset repository.Asset
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyAssetNameIndex(idSystemObjectOwner, repository.AssetKey(filePath, fileName)))
		if err == badger.ErrKeyNotFound {
			return &repository.Error{
				Code:    repository.CodeNotFound,
				Message: "no asset named " + fileName,
				Entity:  repository.EntityAsset,
			}
		}
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(val []byte) error {
			var err error
			id, err = decodeID(val)
			return err
		}); err != nil {
			return err
		}
		return getRecord(txn, keyAsset(id), &asset, repository.EntityAsset, id)
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *Store) CreateAssetVersion(ctx context.Context, version *repository.AssetVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return err
	}
	record := *version
	record.IDAssetVersion = id
	if record.DateCreated.IsZero() {
		record.DateCreated = s.now()
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, keyAsset(version.IDAsset))
		if err != nil {
			return err
		}
		if !ok {
			return repository.NotFound(repository.EntityAsset, version.IDAsset)
		}

		latest, err := s.latestVersion(txn, version.IDAsset)
		if err != nil {
			return err
		}
		record.Version = 1
		if latest != nil {
			record.Version = latest.Version + 1
		}

		if err := putRecord(txn, keyAssetVersion(id), &record); err != nil {
			return err
		}
		return txn.Set(keyAssetVersionIndex(record.IDAsset, record.Version), encodeID(id))
	})
	if err != nil {
		return err
	}
	*version = record
	return nil
}

func (s *Store) SnapshotSystemObject(ctx context.Context, idSystemObject int64) (*repository.SystemObjectVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return nil, err
	}
	snap := &repository.SystemObjectVersion{
		IDSystemObjectVersion: id,
		IDSystemObject:        idSystemObject,
		AssetVersionIDs:       make([]int64, 0),
		DateCreated:           s.now(),
	}

	err = s.db.Update(func(txn *badger.Txn) error {
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
			vid, err := latestVersionID(txn, idAsset)
			if err != nil {
				return err
			}
			if vid != 0 {
				snap.AssetVersionIDs = append(snap.AssetVersionIDs, vid)
			}
		}
		return putRecord(txn, keySystemObjectVersion(id), snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, wf *repository.Workflow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return err
	}
	record := *wf
	record.IDWorkflow = id

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := putRecord(txn, keyWorkflow(id), &record); err != nil {
			return err
		}
		if record.IDWorkflowSet != 0 {
			return txn.Set(keyWorkflowSetIndex(record.IDWorkflowSet, id), nil)
		}
		return nil
	})
	if err != nil {
		return err
	}
	wf.IDWorkflow = id
	return nil
}

func (s *Store) CreateWorkflowReport(ctx context.Context, report *repository.WorkflowReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return err
	}
	record := *report
	record.IDWorkflowReport = id

	err = s.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, keyWorkflow(report.IDWorkflow))
		if err != nil {
			return err
		}
		if !ok {
			return repository.NotFound(repository.EntityWorkflow, report.IDWorkflow)
		}
		if err := putRecord(txn, keyWorkflowReport(id), &record); err != nil {
			return err
		}
		return txn.Set(keyWorkflowReportIndex(report.IDWorkflow, id), nil)
	})
	if err != nil {
		return err
	}
	report.IDWorkflowReport = id
	return nil
}

func (s *Store) CreateJobRun(ctx context.Context, run *repository.JobRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.allocID()
	if err != nil {
		return err
	}
	record := *run
	record.IDJobRun = id

	err = s.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, keyJobRun(id), &record)
	})
	if err != nil {
		return err
	}
	run.IDJobRun = id
	return nil
}

func (s *Store) StorageKeys(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixAssetVersion)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v repository.AssetVersion
			if err := it.Item().Value(func(val []byte) error {
				return decode(val, &v)
			}); err != nil {
				return err
			}
			if v.StorageKey != "" {
				keys[v.StorageKey] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
