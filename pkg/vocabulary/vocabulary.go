// Package vocabulary maps file names onto asset-type classifications and
// classifications onto repository asset-type ids.
package vocabulary

import (
	"strings"
)

// Classification is the coarse asset category derived from a file name.
type Classification int

const (
	ClassOther Classification = iota
	ClassModelGeometry
	ClassScene
)

func (c Classification) String() string {
	switch c {
	case ClassModelGeometry:
		return "Model Geometry File"
	case ClassScene:
		return "Scene"
	default:
		return "Other"
	}
}

// Cache answers classification questions. Implementations are read-mostly
// and safe for concurrent use.
type Cache interface {
	// ClassifyExtension maps a lower-cased extension including the dot
	// (".obj") to ClassModelGeometry, or ClassOther when unrecognized.
	ClassifyExtension(ext string) Classification

	// AssetTypeID returns the vocabulary id for a classification. ok is
	// false when the vocabulary has no entry for it.
	AssetTypeID(c Classification) (id int64, ok bool)
}

// Config is the vocabulary section of the configuration file.
type Config struct {
	// ModelExtensions lists extensions recognized as model geometry
	ModelExtensions []string `mapstructure:"model_extensions" yaml:"model_extensions"`

	// SceneSuffix marks scene description files, e.g. ".svx.json"
	SceneSuffix string `mapstructure:"scene_suffix" yaml:"scene_suffix"`

	// AssetTypes maps classification keys (scene, model_geometry, other)
	// to vocabulary ids. A missing key disables uploads of that class.
	AssetTypes map[string]int64 `mapstructure:"asset_types" yaml:"asset_types"`
}

// DefaultModelExtensions are the geometry formats recognized out of the box.
var DefaultModelExtensions = []string{
	".obj", ".ply", ".stl", ".glb", ".gltf", ".usd", ".usdz", ".x3d", ".wrl", ".fbx", ".dae", ".3ds", ".ptm",
}

// DefaultSceneSuffix is the scene description suffix.
const DefaultSceneSuffix = ".svx.json"

// classKeys are the configuration keys for each classification.
var classKeys = map[string]Classification{
	"scene":          ClassScene,
	"model_geometry": ClassModelGeometry,
	"other":          ClassOther,
}

// Static is a Cache built once from configuration.
type Static struct {
	extensions map[string]struct{}
	types      map[Classification]int64
}

// NewStatic builds a Cache from cfg. Unknown asset_types keys are ignored.
func NewStatic(cfg Config) *Static {
	s := &Static{
		extensions: make(map[string]struct{}, len(cfg.ModelExtensions)),
		types:      make(map[Classification]int64, len(cfg.AssetTypes)),
	}
	for _, ext := range cfg.ModelExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extensions[ext] = struct{}{}
	}
	for key, id := range cfg.AssetTypes {
		if c, ok := classKeys[strings.ToLower(key)]; ok && id > 0 {
			s.types[c] = id
		}
	}
	return s
}

func (s *Static) ClassifyExtension(ext string) Classification {
	if _, ok := s.extensions[strings.ToLower(ext)]; ok {
		return ClassModelGeometry
	}
	return ClassOther
}

func (s *Static) AssetTypeID(c Classification) (int64, bool) {
	id, ok := s.types[c]
	return id, ok
}

var _ Cache = (*Static)(nil)
