// Package session defines analysis sessions, their graph settings and the
// on-disk layout of a session directory.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
)

// Files inside a session directory.
const (
	InfoFile              = "info.json"
	PredictFile           = "predict.csv"
	EigenValuesFile       = "eigen_values.csv"
	EigenVectorsFile      = "eigen_vectors.csv"
	ExplainedVarianceFile = "explained_variance.csv"
	DistanceFile          = "distance_matrix.csv"
)

// Type tells whether a session holds one run file or several.
type Type string

const (
	Single    Type = "single"
	Separated Type = "separated"
)

// Session is the persisted metadata of one analysis session.
type Session struct {
	ID                string           `json:"id" validate:"omitempty,uuid"`
	Name              string           `json:"name" validate:"required,sessionname"`
	Type              Type             `json:"type,omitempty" validate:"omitempty,oneof=single separated"`
	Orientation       string           `json:"orientation,omitempty" validate:"omitempty,oneof=row column"`
	FileNames         []string         `json:"fileNames,omitempty"`
	LabelNames        []string         `json:"labelNames,omitempty"`
	DimensionLabels   []string         `json:"dimensionLabels,omitempty"`
	DimensionCount    int              `json:"dimension_count,omitempty" validate:"gte=0"`
	PredictNormalize  normalize.Scheme `json:"predict_normalize,omitempty" validate:"omitempty,scheme"`
	PredictMethod     pca.Method       `json:"predict_method,omitempty" validate:"omitempty,pcamethod"`
	DistanceNormalize normalize.Scheme `json:"distance_normalize,omitempty" validate:"omitempty,scheme"`
	CreatedDate       time.Time        `json:"created_date"`

	// ImportDimensionCount is the count fixed by the first valid run of the
	// latest import attempt, including a rejected one. DimensionCount only
	// changes when an import succeeds.
	ImportDimensionCount int `json:"import_dimension_count,omitempty" validate:"gte=0"`
}

// New returns a session with the default cache keys.
func New(name string) *Session {
	return &Session{
		Name:              name,
		PredictNormalize:  normalize.Center,
		DistanceNormalize: normalize.None,
		CreatedDate:       time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.FileNames = append([]string(nil), s.FileNames...)
	c.LabelNames = append([]string(nil), s.LabelNames...)
	c.DimensionLabels = append([]string(nil), s.DimensionLabels...)
	return &c
}

// RequireMetadata fails with MissingSessionMetadata until an import has
// recorded file names, labels and the dimension count.
func RequireMetadata(s *Session) error {
	var missing []string
	if len(s.FileNames) == 0 {
		missing = append(missing, "fileNames")
	}
	if len(s.LabelNames) == 0 {
		missing = append(missing, "labelNames")
	}
	if s.DimensionCount == 0 {
		missing = append(missing, "dimension_count")
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.KindMissingSessionMetadata,
			"session %q has no %s; import data first", s.Name, strings.Join(missing, ", ")).
			WithContext("session", s.Name)
	}
	return nil
}

// GraphType names a presentation of the analysis results.
type GraphType string

const (
	PCA2DScatter    GraphType = "pca-2d-scatter"
	PCA3DScatter    GraphType = "pca-3d-scatter"
	HCADendrogram   GraphType = "hca-dendrogram"
	HeatmapDefault  GraphType = "hca-heatmap-default"
	HeatmapDistance GraphType = "hca-heatmap-distance"
)

// GraphTypes lists every graph in display order.
var GraphTypes = []GraphType{PCA2DScatter, PCA3DScatter, HCADendrogram, HeatmapDefault, HeatmapDistance}

// ParseGraphType validates a graph name.
func ParseGraphType(s string) (GraphType, error) {
	for _, g := range GraphTypes {
		if string(g) == strings.TrimSpace(s) {
			return g, nil
		}
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown graph %q", s)
}

// GraphConfig holds the settings of one graph. Unset fields do not apply.
type GraphConfig struct {
	Orientation       string           `json:"orientation,omitempty" yaml:"orientation,omitempty" validate:"omitempty,oneof=vertical horizontal"`
	Size              int              `json:"size,omitempty" yaml:"size,omitempty" validate:"omitempty,min=1,max=50"`
	XClusteringMethod hca.Linkage      `json:"xClusteringMethod,omitempty" yaml:"xClusteringMethod,omitempty" validate:"omitempty,linkage"`
	YClusteringMethod hca.Linkage      `json:"yClusteringMethod,omitempty" yaml:"yClusteringMethod,omitempty" validate:"omitempty,linkage"`
	ClusteringMethod  hca.Linkage      `json:"clusteringMethod,omitempty" yaml:"clusteringMethod,omitempty" validate:"omitempty,linkage"`
	Normalize         normalize.Scheme `json:"normalize,omitempty" yaml:"normalize,omitempty" validate:"omitempty,scheme"`
}

// GraphConfigs maps each graph to its settings.
type GraphConfigs map[GraphType]GraphConfig

// DefaultGraphConfigs returns the settings of a new session.
func DefaultGraphConfigs() GraphConfigs {
	return GraphConfigs{
		PCA2DScatter:    {Normalize: normalize.Center, Size: 5},
		PCA3DScatter:    {Normalize: normalize.Center, Size: 5},
		HCADendrogram:   {Normalize: normalize.None, ClusteringMethod: hca.Complete, Orientation: "horizontal"},
		HeatmapDefault:  {Normalize: normalize.None, XClusteringMethod: hca.Complete, YClusteringMethod: hca.Complete},
		HeatmapDistance: {Normalize: normalize.None, XClusteringMethod: hca.Complete, YClusteringMethod: hca.Complete},
	}
}

// Properties are the settable GraphConfig fields.
var Properties = []string{"orientation", "size", "xClusteringMethod", "yClusteringMethod", "clusteringMethod", "normalize"}

// Set returns a copy of g with property set to value.
func (g GraphConfig) Set(property, value string) (GraphConfig, error) {
	value = strings.TrimSpace(value)
	switch property {
	case "orientation":
		g.Orientation = strings.ToLower(value)
	case "size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return g, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("size %q is not an integer", value), err)
		}
		g.Size = n
	case "xClusteringMethod", "yClusteringMethod", "clusteringMethod":
		l, err := hca.ParseLinkage(value)
		if err != nil {
			return g, err
		}
		switch property {
		case "xClusteringMethod":
			g.XClusteringMethod = l
		case "yClusteringMethod":
			g.YClusteringMethod = l
		default:
			g.ClusteringMethod = l
		}
	case "normalize":
		s, err := normalize.ParseScheme(value)
		if err != nil {
			return g, err
		}
		g.Normalize = s
	default:
		return g, apperr.Newf(apperr.KindInvalidInput, "unknown graph property %q (use %s)", property, strings.Join(Properties, ", "))
	}
	if err := Validate(g); err != nil {
		return g, err
	}
	return g, nil
}

// Info is the content of info.json.
type Info struct {
	Session      *Session     `json:"session" validate:"required"`
	GraphConfigs GraphConfigs `json:"graphConfigs"`
}
