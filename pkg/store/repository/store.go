// Package repository defines the relational object graph the gateway reads
// from: system objects, assets and their versions, snapshots, workflow
// reports and job runs.
//
// Reader is everything the address resolver needs. Writer is used by the
// reference storage engine and by seeding tools. Store combines both and is
// what concrete implementations (memory, badger) provide.
package repository

import "context"

// Reader provides id-based lookups. Missing records are reported with
// ErrNotFound; list lookups return an empty slice (not an error) when the
// container exists but holds nothing.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Reader interface {
	// GetSystemObject returns the owning-entity pair for a system object.
	GetSystemObject(ctx context.Context, idSystemObject int64) (*SystemObject, error)

	// GetAsset returns an asset by id.
	GetAsset(ctx context.Context, idAsset int64) (*Asset, error)

	// GetAssetVersion returns an asset version by id.
	GetAssetVersion(ctx context.Context, idAssetVersion int64) (*AssetVersion, error)

	// GetLatestAssetVersion returns the highest-numbered version of an asset.
	GetLatestAssetVersion(ctx context.Context, idAsset int64) (*AssetVersion, error)

	// GetLatestAssetVersionsForSystemObject returns the latest version of
	// every asset owned by the system object. An object without assets
	// yields an empty slice and no error.
	GetLatestAssetVersionsForSystemObject(ctx context.Context, idSystemObject int64) ([]*AssetVersion, error)

	// GetAssetVersionsForSystemObjectVersion returns the versions captured in
	// a historical snapshot. Empty snapshots yield an empty slice.
	GetAssetVersionsForSystemObjectVersion(ctx context.Context, idSystemObjectVersion int64) ([]*AssetVersion, error)

	// GetWorkflowReportsForWorkflow returns all reports of a workflow.
	GetWorkflowReportsForWorkflow(ctx context.Context, idWorkflow int64) ([]*WorkflowReport, error)

	// GetWorkflowReportsForWorkflowSet returns the reports of every workflow
	// in the set.
	GetWorkflowReportsForWorkflowSet(ctx context.Context, idWorkflowSet int64) ([]*WorkflowReport, error)

	// GetWorkflowReport returns a single report.
	GetWorkflowReport(ctx context.Context, idWorkflowReport int64) (*WorkflowReport, error)

	// GetJobRun returns a single job run.
	GetJobRun(ctx context.Context, idJobRun int64) (*JobRun, error)
}

// Writer creates records. Ids are assigned by the implementation and written
// back into the passed struct.
type Writer interface {
	CreateSystemObject(ctx context.Context, so *SystemObject) error

	// CreateAsset requires an existing owning system object.
	CreateAsset(ctx context.Context, asset *Asset) error

	// CreateAssetVersion requires an existing asset. Version is assigned as
	// the asset's current highest version plus one.
	CreateAssetVersion(ctx context.Context, version *AssetVersion) error

	// FindAsset looks up an asset by owner and case-insensitive path/name.
	FindAsset(ctx context.Context, idSystemObjectOwner int64, filePath, fileName string) (*Asset, error)

	// SnapshotSystemObject captures the object's current latest versions.
	SnapshotSystemObject(ctx context.Context, idSystemObject int64) (*SystemObjectVersion, error)

	CreateWorkflow(ctx context.Context, wf *Workflow) error
	CreateWorkflowReport(ctx context.Context, report *WorkflowReport) error
	CreateJobRun(ctx context.Context, run *JobRun) error

	// StorageKeys returns every storage key referenced by an asset version.
	StorageKeys(ctx context.Context) (map[string]struct{}, error)
}

// Store is a complete repository implementation.
type Store interface {
	Reader
	Writer

	// Close releases resources held by the store.
	Close() error
}
