// Package memory is an in-memory repository.Store.
//
// It is the default repository for development and the backing store of most
// package tests. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/packrat/davgate/pkg/store/repository"
)

// Store implements repository.Store with plain maps.
//
// Thread Safety:
// All operations are protected by a single read-write mutex. Returned records
// are copies; mutating them does not affect the store.
type Store struct {
	mu sync.RWMutex

	nextID int64

	systemObjects        map[int64]*repository.SystemObject
	systemObjectVersions map[int64]*repository.SystemObjectVersion
	assets               map[int64]*repository.Asset
	assetVersions        map[int64]*repository.AssetVersion
	workflows            map[int64]*repository.Workflow
	workflowReports      map[int64]*repository.WorkflowReport
	jobRuns              map[int64]*repository.JobRun

	// versionsByAsset lists version ids per asset in ascending version order
	versionsByAsset map[int64][]int64

	// assetsByOwner lists asset ids per owning system object
	assetsByOwner map[int64][]int64

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		systemObjects:        make(map[int64]*repository.SystemObject),
		systemObjectVersions: make(map[int64]*repository.SystemObjectVersion),
		assets:               make(map[int64]*repository.Asset),
		assetVersions:        make(map[int64]*repository.AssetVersion),
		workflows:            make(map[int64]*repository.Workflow),
		workflowReports:      make(map[int64]*repository.WorkflowReport),
		jobRuns:              make(map[int64]*repository.JobRun),
		versionsByAsset:      make(map[int64][]int64),
		assetsByOwner:        make(map[int64][]int64),
		now:                  time.Now,
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// allocID hands out ids from a single sequence shared by all record kinds.
// Must be called with mu held for writing.
func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) GetSystemObject(ctx context.Context, idSystemObject int64) (*repository.SystemObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	so, ok := s.systemObjects[idSystemObject]
	if !ok {
		return nil, repository.NotFound(repository.EntitySystemObject, idSystemObject)
	}
	cp := *so
	return &cp, nil
}

func (s *Store) GetAsset(ctx context.Context, idAsset int64) (*repository.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[idAsset]
	if !ok {
		return nil, repository.NotFound(repository.EntityAsset, idAsset)
	}
	cp := *asset
	return &cp, nil
}

func (s *Store) GetAssetVersion(ctx context.Context, idAssetVersion int64) (*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.assetVersions[idAssetVersion]
	if !ok {
		return nil, repository.NotFound(repository.EntityAssetVersion, idAssetVersion)
	}
	cp := *v
	return &cp, nil
}

func (s *Store) GetLatestAssetVersion(ctx context.Context, idAsset int64) (*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.latestLocked(idAsset)
	if v == nil {
		return nil, repository.NotFound(repository.EntityAsset, idAsset)
	}
	cp := *v
	return &cp, nil
}

func (s *Store) latestLocked(idAsset int64) *repository.AssetVersion {
	ids := s.versionsByAsset[idAsset]
	if len(ids) == 0 {
		return nil
	}
	return s.assetVersions[ids[len(ids)-1]]
}

func (s *Store) GetLatestAssetVersionsForSystemObject(ctx context.Context, idSystemObject int64) ([]*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.systemObjects[idSystemObject]; !ok {
		return nil, repository.NotFound(repository.EntitySystemObject, idSystemObject)
	}

	result := make([]*repository.AssetVersion, 0, len(s.assetsByOwner[idSystemObject]))
	for _, idAsset := range s.assetsByOwner[idSystemObject] {
		if v := s.latestLocked(idAsset); v != nil {
			cp := *v
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) GetAssetVersionsForSystemObjectVersion(ctx context.Context, idSystemObjectVersion int64) ([]*repository.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.systemObjectVersions[idSystemObjectVersion]
	if !ok {
		return nil, repository.NotFound(repository.EntitySystemObjectVersion, idSystemObjectVersion)
	}

	result := make([]*repository.AssetVersion, 0, len(snap.AssetVersionIDs))
	for _, id := range snap.AssetVersionIDs {
		if v, ok := s.assetVersions[id]; ok {
			cp := *v
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) GetWorkflowReportsForWorkflow(ctx context.Context, idWorkflow int64) ([]*repository.WorkflowReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reportsLocked(func(wf *repository.Workflow) bool {
		return wf.IDWorkflow == idWorkflow
	}), nil
}

func (s *Store) GetWorkflowReportsForWorkflowSet(ctx context.Context, idWorkflowSet int64) ([]*repository.WorkflowReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reportsLocked(func(wf *repository.Workflow) bool {
		return wf.IDWorkflowSet != 0 && wf.IDWorkflowSet == idWorkflowSet
	}), nil
}

// reportsLocked returns reports whose workflow satisfies match, ordered by id.
func (s *Store) reportsLocked(match func(*repository.Workflow) bool) []*repository.WorkflowReport {
	result := make([]*repository.WorkflowReport, 0)
	for _, r := range s.workflowReports {
		wf, ok := s.workflows[r.IDWorkflow]
		if !ok || !match(wf) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IDWorkflowReport < result[j].IDWorkflowReport
	})
	return result
}

func (s *Store) GetWorkflowReport(ctx context.Context, idWorkflowReport int64) (*repository.WorkflowReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.workflowReports[idWorkflowReport]
	if !ok {
		return nil, repository.NotFound(repository.EntityWorkflowReport, idWorkflowReport)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetJobRun(ctx context.Context, idJobRun int64) (*repository.JobRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	jr, ok := s.jobRuns[idJobRun]
	if !ok {
		return nil, repository.NotFound(repository.EntityJobRun, idJobRun)
	}
	cp := *jr
	return &cp, nil
}

// ============================================================================
// Writer
// ============================================================================

func (s *Store) CreateSystemObject(ctx context.Context, so *repository.SystemObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	so.IDSystemObject = s.allocID()
	cp := *so
	s.systemObjects[so.IDSystemObject] = &cp
	return nil
}

func (s *Store) CreateAsset(ctx context.Context, asset *repository.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if asset.FileName == "" {
		return repository.InvalidArgument(repository.EntityAsset, "file name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.systemObjects[asset.IDSystemObjectOwner]; !ok {
		return repository.NotFound(repository.EntitySystemObject, asset.IDSystemObjectOwner)
	}
	if s.findAssetLocked(asset.IDSystemObjectOwner, asset.FilePath, asset.FileName) != nil {
		return &repository.Error{
			Code:    repository.CodeAlreadyExists,
			Message: "asset " + asset.FileName + " already exists",
			Entity:  repository.EntityAsset,
		}
	}

	asset.IDAsset = s.allocID()
	cp := *asset
	s.assets[asset.IDAsset] = &cp
	s.assetsByOwner[asset.IDSystemObjectOwner] = append(s.assetsByOwner[asset.IDSystemObjectOwner], asset.IDAsset)
	return nil
}

func (s *Store) FindAsset(ctx context.Context, idSystemObjectOwner int64, filePath, fileName string) (*repository.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset := s.findAssetLocked(idSystemObjectOwner, filePath, fileName)
	if asset == nil {
		return nil, &repository.Error{
			Code:    repository.CodeNotFound,
			Message: "no asset named " + fileName,
			Entity:  repository.EntityAsset,
		}
	}
	cp := *asset
	return &cp, nil
}

func (s *Store) findAssetLocked(owner int64, filePath, fileName string) *repository.Asset {
	key := repository.AssetKey(filePath, fileName)
	for _, id := range s.assetsByOwner[owner] {
		a := s.assets[id]
		if repository.AssetKey(a.FilePath, a.FileName) == key {
			return a
		}
	}
	return nil
}

func (s *Store) CreateAssetVersion(ctx context.Context, version *repository.AssetVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[version.IDAsset]; !ok {
		return repository.NotFound(repository.EntityAsset, version.IDAsset)
	}

	version.Version = 1
	if latest := s.latestLocked(version.IDAsset); latest != nil {
		version.Version = latest.Version + 1
	}
	if version.DateCreated.IsZero() {
		version.DateCreated = s.now()
	}
	version.IDAssetVersion = s.allocID()

	cp := *version
	s.assetVersions[version.IDAssetVersion] = &cp
	s.versionsByAsset[version.IDAsset] = append(s.versionsByAsset[version.IDAsset], version.IDAssetVersion)
	return nil
}

func (s *Store) SnapshotSystemObject(ctx context.Context, idSystemObject int64) (*repository.SystemObjectVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.systemObjects[idSystemObject]; !ok {
		return nil, repository.NotFound(repository.EntitySystemObject, idSystemObject)
	}

	snap := &repository.SystemObjectVersion{
		IDSystemObject:  idSystemObject,
		AssetVersionIDs: make([]int64, 0),
		DateCreated:     s.now(),
	}
	for _, idAsset := range s.assetsByOwner[idSystemObject] {
		if v := s.latestLocked(idAsset); v != nil {
			snap.AssetVersionIDs = append(snap.AssetVersionIDs, v.IDAssetVersion)
		}
	}
	snap.IDSystemObjectVersion = s.allocID()

	stored := *snap
	stored.AssetVersionIDs = append([]int64(nil), snap.AssetVersionIDs...)
	s.systemObjectVersions[snap.IDSystemObjectVersion] = &stored
	return snap, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, wf *repository.Workflow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wf.IDWorkflow = s.allocID()
	cp := *wf
	s.workflows[wf.IDWorkflow] = &cp
	return nil
}

func (s *Store) CreateWorkflowReport(ctx context.Context, report *repository.WorkflowReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[report.IDWorkflow]; !ok {
		return repository.NotFound(repository.EntityWorkflow, report.IDWorkflow)
	}
	report.IDWorkflowReport = s.allocID()
	cp := *report
	s.workflowReports[report.IDWorkflowReport] = &cp
	return nil
}

func (s *Store) CreateJobRun(ctx context.Context, run *repository.JobRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run.IDJobRun = s.allocID()
	cp := *run
	s.jobRuns[run.IDJobRun] = &cp
	return nil
}

func (s *Store) StorageKeys(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[string]struct{}, len(s.assetVersions))
	for _, v := range s.assetVersions {
		if v.StorageKey != "" {
			keys[v.StorageKey] = struct{}{}
		}
	}
	return keys, nil
}

var _ repository.Store = (*Store)(nil)
