package repository

import (
	"path"
	"strings"
	"time"
)

// ObjectType identifies which first-class entity a system object wraps.
type ObjectType int

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypeUnit
	ObjectTypeProject
	ObjectTypeSubject
	ObjectTypeItem
	ObjectTypeCaptureData
	ObjectTypeModel
	ObjectTypeScene
	ObjectTypeIntermediaryFile
	ObjectTypeProjectDocumentation
	ObjectTypeAsset
	ObjectTypeAssetVersion
	ObjectTypeActor
	ObjectTypeStakeholder
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeUnknown:              "Unknown",
	ObjectTypeUnit:                 "Unit",
	ObjectTypeProject:              "Project",
	ObjectTypeSubject:              "Subject",
	ObjectTypeItem:                 "Item",
	ObjectTypeCaptureData:          "CaptureData",
	ObjectTypeModel:                "Model",
	ObjectTypeScene:                "Scene",
	ObjectTypeIntermediaryFile:     "IntermediaryFile",
	ObjectTypeProjectDocumentation: "ProjectDocumentation",
	ObjectTypeAsset:                "Asset",
	ObjectTypeAssetVersion:         "AssetVersion",
	ObjectTypeActor:                "Actor",
	ObjectTypeStakeholder:          "Stakeholder",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// SystemObject is the repository's generic addressable handle. It pairs a
// system object id with the concrete entity it wraps (the "owning entity").
type SystemObject struct {
	IDSystemObject int64      `cbor:"1,keyasint"`
	ObjectType     ObjectType `cbor:"2,keyasint"`
	IDObject       int64      `cbor:"3,keyasint"`
	Retired        bool       `cbor:"4,keyasint"`
}

// Asset is a named file attached to a system object. Its bytes live in
// versions.
type Asset struct {
	IDAsset             int64  `cbor:"1,keyasint"`
	FileName            string `cbor:"2,keyasint"`
	FilePath            string `cbor:"3,keyasint"`
	IDAssetType         int64  `cbor:"4,keyasint"`
	IDSystemObjectOwner int64  `cbor:"5,keyasint"`
	StorageKeyStaging   string `cbor:"6,keyasint,omitempty"`
}

// AssetVersion is one committed, content-hashed revision of an asset.
type AssetVersion struct {
	IDAssetVersion int64     `cbor:"1,keyasint"`
	IDAsset        int64     `cbor:"2,keyasint"`
	Version        int       `cbor:"3,keyasint"`
	FileName       string    `cbor:"4,keyasint"`
	FilePath       string    `cbor:"5,keyasint"`
	IDUserCreator  int64     `cbor:"6,keyasint"`
	DateCreated    time.Time `cbor:"7,keyasint"`
	StorageHash    string    `cbor:"8,keyasint"`
	StorageSize    int64     `cbor:"9,keyasint"`
	StorageKey     string    `cbor:"10,keyasint"`
	Ingested       bool      `cbor:"11,keyasint"`
	Comment        string    `cbor:"12,keyasint,omitempty"`
}

// NormalizedPath returns "/<FilePath>/<FileName>" with an empty or "."
// FilePath elided. Case is preserved; callers lower-case for comparisons.
func (v *AssetVersion) NormalizedPath() string {
	dir := strings.Trim(v.FilePath, "/")
	if dir == "" || dir == "." {
		return "/" + v.FileName
	}
	return "/" + path.Join(dir, v.FileName)
}

// SystemObjectVersion is a historical snapshot of the asset versions attached
// to a system object.
type SystemObjectVersion struct {
	IDSystemObjectVersion int64     `cbor:"1,keyasint"`
	IDSystemObject        int64     `cbor:"2,keyasint"`
	AssetVersionIDs       []int64   `cbor:"3,keyasint"`
	DateCreated           time.Time `cbor:"4,keyasint"`
}

// Workflow groups the reports produced by one workflow execution.
type Workflow struct {
	IDWorkflow    int64 `cbor:"1,keyasint"`
	IDWorkflowSet int64 `cbor:"2,keyasint,omitempty"`
}

// WorkflowReport is a textual report attached to a workflow.
type WorkflowReport struct {
	IDWorkflowReport int64  `cbor:"1,keyasint"`
	IDWorkflow       int64  `cbor:"2,keyasint"`
	MimeType         string `cbor:"3,keyasint"`
	Data             string `cbor:"4,keyasint"`
}

// JobRun is one execution of an external job.
type JobRun struct {
	IDJobRun  int64     `cbor:"1,keyasint"`
	IDJob     int64     `cbor:"2,keyasint"`
	Status    string    `cbor:"3,keyasint"`
	Result    bool      `cbor:"4,keyasint"`
	Output    string    `cbor:"5,keyasint,omitempty"`
	Error     string    `cbor:"6,keyasint,omitempty"`
	DateStart time.Time `cbor:"7,keyasint"`
	DateEnd   time.Time `cbor:"8,keyasint"`
}

// AssetKey is the case-insensitive identity of an asset within its owner:
// the lower-cased normalized path.
func AssetKey(filePath, fileName string) string {
	v := AssetVersion{FilePath: filePath, FileName: fileName}
	return strings.ToLower(v.NormalizedPath())
}
