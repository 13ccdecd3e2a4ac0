package arcgis

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/paddockmaps/landtypes/internal/logger"
)

// Feature is one category-layer record reduced to the fixed schema the
// pipeline consumes: a geometry plus a category code and display label.
// Records missing a geometry are dropped during normalization; records
// missing attributes fall back to "UNK"/"Unknown" rather than propagating
// untyped maps downstream.
type Feature struct {
	Geometry orb.Geometry
	Code     string
	Name     string
}

// PointFeature is one point-layer record (for example a registered
// groundwater bore), keyed by the layer's code field.
type PointFeature struct {
	Point orb.Point
	Ref   string
	Label string
}

// Attribute fallbacks tried after the configured field, uppercased. The QLD
// land types layers have shipped several spellings over time.
var (
	codeFallbacks = []string{"LT_CODE_1", "LT_CODE", "LANDTYPE_CODE", "LTYPE_CODE", "MAP_CODE", "CLASS_CODE", "CODE"}
	nameFallbacks = []string{"LT_NAME_1", "LT_NAME", "LANDTYPE_NAME", "LTYPE_NAME", "MAP_NAME", "CLASS_NAME", "NAME"}
)

func normalizeFeatures(fc *geojson.FeatureCollection, layer LayerRef) []Feature {
	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			logger.L().Warn("feature_missing_geometry", "layer", layer.Name)
			continue
		}
		props := upperProps(f.Properties)
		code := pickProp(props, layer.CodeField, codeFallbacks)
		name := pickProp(props, layer.NameField, nameFallbacks)
		if code == "" && name != "" {
			code = name
		}
		if name == "" && code != "" {
			name = code
		}
		if code == "" {
			code = "UNK"
		}
		if name == "" {
			name = "Unknown"
		}
		out = append(out, Feature{Geometry: f.Geometry, Code: code, Name: name})
	}
	return out
}

func normalizePoints(fc *geojson.FeatureCollection, layer LayerRef) []PointFeature {
	out := make([]PointFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		props := upperProps(f.Properties)
		ref := pickProp(props, layer.CodeField, nil)
		if ref == "" {
			continue
		}
		out = append(out, PointFeature{
			Point: pt,
			Ref:   ref,
			Label: pickProp(props, layer.NameField, nil),
		})
	}
	return out
}

// upperProps copies properties with uppercased keys so attribute lookup is
// case-insensitive (lt_code_1 vs LT_CODE_1).
func upperProps(props geojson.Properties) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// pickProp returns the first non-empty value among the configured field and
// its fallbacks, rendered as a trimmed string.
func pickProp(props map[string]interface{}, field string, fallbacks []string) string {
	keys := make([]string, 0, len(fallbacks)+1)
	if field != "" {
		keys = append(keys, strings.ToUpper(field))
	}
	keys = append(keys, fallbacks...)
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			s := strings.TrimSpace(fmt.Sprintf("%v", v))
			if s != "" {
				return s
			}
		}
	}
	return ""
}
