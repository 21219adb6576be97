// Package resolver maps a request path or query onto exactly one repository
// entity or entity collection.
//
// Two address forms are accepted:
//
//	<root>/idSystemObject-<id>[/<sub-path>]
//	<root>?<one of idSystemObject, idSystemObjectVersion, idAsset,
//	        idAssetVersion, idWorkflow, idWorkflowReport, idWorkflowSet,
//	        idJobRun>=<id>
//
// The path form wins when both are present. The resolver only reads from
// the repository and never audits.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/rs/zerolog"
)

// SystemObjectDirPrefix starts the first segment of every path address.
const SystemObjectDirPrefix = "idSystemObject-"

var pathPattern = regexp.MustCompile(`^/` + SystemObjectDirPrefix + `(\d+)(/.*)?$`)

// Request is one resolution request.
type Request struct {
	// Root is the mount prefix stripped from Path before matching
	Root string

	// Path is the request path, e.g. "/webdav/idSystemObject-12/models/a.obj"
	Path string

	// Query holds the parsed query string, consulted when Path does not match
	Query url.Values

	// MatchPartial allows a sub-path naming a directory to resolve to a
	// version located beneath it (flagged Partial)
	MatchPartial bool

	// AllSiblings ignores the sub-path and returns every latest version of
	// the system object
	AllSiblings bool
}

// Target is a successful resolution. Exactly one payload field is set,
// except that Message may accompany an empty AssetVersions.
type Target struct {
	Mode Mode

	// ID is the identifier that selected the mode
	ID int64

	// SystemObject is set in ModeSystemObject
	SystemObject *repository.SystemObject

	// SubPath is the path below the system object directory, "" for none
	SubPath string

	AssetVersion    *repository.AssetVersion
	AssetVersions   []*repository.AssetVersion
	WorkflowReports []*repository.WorkflowReport
	JobRun          *repository.JobRun

	// Message is set when a container legitimately holds no assets
	Message string

	// Partial reports that AssetVersion lies beneath SubPath rather than
	// matching it exactly
	Partial bool
}

// Subject returns the entity type and id to tag audit events with.
func (t *Target) Subject() (repository.ObjectType, int64) {
	switch t.Mode {
	case ModeAssetVersion:
		return repository.ObjectTypeAssetVersion, t.ID
	case ModeAsset:
		return repository.ObjectTypeAsset, t.ID
	case ModeSystemObject:
		if t.SystemObject != nil {
			return t.SystemObject.ObjectType, t.ID
		}
	}
	return repository.ObjectTypeUnknown, t.ID
}

// Resolver resolves requests against a repository reader.
type Resolver struct {
	repo repository.Reader
	log  zerolog.Logger
}

// New creates a resolver.
func New(repo repository.Reader) *Resolver {
	return &Resolver{repo: repo, log: logger.With("resolver")}
}

// ParsePath extracts the system object id and sub-path from a path address.
// ok is false when path is not of the form <root>/idSystemObject-<digits>...
// The sub-path is "" when absent or "/".
func ParsePath(root, path string) (idStr, subPath string, ok bool) {
	root = strings.TrimSuffix(root, "/")
	if root != "" {
		if !strings.HasPrefix(path, root) {
			return "", "", false
		}
		path = path[len(root):]
	}

	m := pathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}
	subPath = strings.TrimSuffix(m[2], "/")
	return m[1], subPath, true
}

// Resolve maps req onto a Target. Failures are *Error values.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Target, error) {
	mode, idStr, subPath, err := selectMode(req)
	if err != nil {
		return nil, err
	}

	id, err := parseID(mode, idStr)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeAssetVersion:
		return r.resolveAssetVersion(ctx, id)
	case ModeAsset:
		return r.resolveAsset(ctx, id)
	case ModeSystemObject:
		return r.resolveSystemObject(ctx, id, subPath, req)
	case ModeSystemObjectVersion:
		return r.resolveSystemObjectVersion(ctx, id)
	case ModeWorkflow:
		return r.resolveWorkflow(ctx, id)
	case ModeWorkflowSet:
		return r.resolveWorkflowSet(ctx, id)
	case ModeWorkflowReport:
		return r.resolveWorkflowReport(ctx, id)
	case ModeJobRun:
		return r.resolveJobRun(ctx, id)
	}
	return nil, addressingError("unsupported addressing mode")
}

// selectMode applies the path form first and falls back to exactly one
// query identifier.
func selectMode(req Request) (Mode, string, string, error) {
	if idStr, subPath, ok := ParsePath(req.Root, req.Path); ok {
		return ModeSystemObject, idStr, subPath, nil
	}

	var (
		found []string
		mode  Mode
		idStr string
	)
	for _, p := range params {
		values, present := req.Query[p.name]
		if !present {
			continue
		}
		if len(values) != 1 {
			return ModeUnknown, "", "", addressingError(fmt.Sprintf("%s supplied %d times", p.name, len(values)))
		}
		found = append(found, p.name)
		mode = p.mode
		idStr = values[0]
	}

	switch len(found) {
	case 0:
		return ModeUnknown, "", "", addressingError("no identifier supplied")
	case 1:
		return mode, idStr, "", nil
	default:
		return ModeUnknown, "", "", addressingError("multiple identifiers supplied: " + strings.Join(found, ", "))
	}
}

func parseID(mode Mode, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, addressingError(fmt.Sprintf("invalid %s %q", mode.Param(), s))
	}
	return id, nil
}

// lookupError converts a repository error. Missing entities become
// CodeNotFound; anything else is logged and becomes CodeLookup.
func (r *Resolver) lookupError(err error, what string, id int64) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeLookup, Message: fmt.Sprintf("lookup of %s %d aborted", what, id), Err: err}
	}
	if errors.Is(err, repository.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %d not found", what, id), Err: err}
	}
	r.log.Error().Err(err).Str("entity", what).Int64("id", id).Msg("repository lookup failed")
	return &Error{Code: CodeLookup, Message: fmt.Sprintf("failed to look up %s %d", what, id), Err: err}
}

func (r *Resolver) resolveAssetVersion(ctx context.Context, id int64) (*Target, error) {
	v, err := r.repo.GetAssetVersion(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamAssetVersion, id)
	}
	return &Target{Mode: ModeAssetVersion, ID: id, AssetVersion: v}, nil
}

func (r *Resolver) resolveAsset(ctx context.Context, id int64) (*Target, error) {
	v, err := r.repo.GetLatestAssetVersion(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamAsset, id)
	}
	return &Target{Mode: ModeAsset, ID: id, AssetVersion: v}, nil
}

func (r *Resolver) resolveSystemObject(ctx context.Context, id int64, subPath string, req Request) (*Target, error) {
	so, err := r.repo.GetSystemObject(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamSystemObject, id)
	}
	versions, err := r.repo.GetLatestAssetVersionsForSystemObject(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamSystemObject, id)
	}

	target := &Target{Mode: ModeSystemObject, ID: id, SystemObject: so, SubPath: subPath}

	if len(versions) == 0 {
		target.AssetVersions = versions
		target.Message = fmt.Sprintf("No Assets are connected to %s %d", ParamSystemObject, id)
		return target, nil
	}

	if subPath == "" || req.AllSiblings {
		target.AssetVersions = versions
		return target, nil
	}

	want := strings.ToLower(subPath)
	for _, v := range versions {
		if strings.ToLower(v.NormalizedPath()) == want {
			target.AssetVersion = v
			return target, nil
		}
	}

	if req.MatchPartial {
		if v := partialMatch(versions, want); v != nil {
			target.AssetVersion = v
			target.Partial = true
			return target, nil
		}
	}

	return nil, notFoundError(fmt.Sprintf("%s %d has no asset at %s", ParamSystemObject, id, subPath))
}

// partialMatch returns the longest version path beneath directory dir
// (already lower-cased). The prefix must end on a segment boundary, so
// "/mod" never matches "/models/a.obj". Equal lengths fall back to lexical
// order.
func partialMatch(versions []*repository.AssetVersion, dir string) *repository.AssetVersion {
	prefix := dir + "/"
	var (
		best     *repository.AssetVersion
		bestPath string
	)
	for _, v := range versions {
		p := strings.ToLower(v.NormalizedPath())
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if best == nil || len(p) > len(bestPath) || (len(p) == len(bestPath) && p < bestPath) {
			best, bestPath = v, p
		}
	}
	return best
}

func (r *Resolver) resolveSystemObjectVersion(ctx context.Context, id int64) (*Target, error) {
	versions, err := r.repo.GetAssetVersionsForSystemObjectVersion(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamSystemObjectVersion, id)
	}
	target := &Target{Mode: ModeSystemObjectVersion, ID: id, AssetVersions: versions}
	if len(versions) == 0 {
		target.Message = fmt.Sprintf("No Assets are connected to %s %d", ParamSystemObjectVersion, id)
	}
	return target, nil
}

func (r *Resolver) resolveWorkflow(ctx context.Context, id int64) (*Target, error) {
	reports, err := r.repo.GetWorkflowReportsForWorkflow(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamWorkflow, id)
	}
	if len(reports) == 0 {
		return nil, notFoundError(fmt.Sprintf("no reports found for %s %d", ParamWorkflow, id))
	}
	return &Target{Mode: ModeWorkflow, ID: id, WorkflowReports: reports}, nil
}

func (r *Resolver) resolveWorkflowSet(ctx context.Context, id int64) (*Target, error) {
	reports, err := r.repo.GetWorkflowReportsForWorkflowSet(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamWorkflowSet, id)
	}
	if len(reports) == 0 {
		return nil, notFoundError(fmt.Sprintf("no reports found for %s %d", ParamWorkflowSet, id))
	}
	return &Target{Mode: ModeWorkflowSet, ID: id, WorkflowReports: reports}, nil
}

func (r *Resolver) resolveWorkflowReport(ctx context.Context, id int64) (*Target, error) {
	report, err := r.repo.GetWorkflowReport(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamWorkflowReport, id)
	}
	return &Target{Mode: ModeWorkflowReport, ID: id, WorkflowReports: []*repository.WorkflowReport{report}}, nil
}

func (r *Resolver) resolveJobRun(ctx context.Context, id int64) (*Target, error) {
	run, err := r.repo.GetJobRun(ctx, id)
	if err != nil {
		return nil, r.lookupError(err, ParamJobRun, id)
	}
	return &Target{Mode: ModeJobRun, ID: id, JobRun: run}, nil
}
