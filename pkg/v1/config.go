package landtypes

import (
	"os"
	"strconv"
	"time"

	"github.com/paddockmaps/landtypes/internal/arcgis"
)

// ParcelConfig describes the cadastre layer and its lot/plan attributes.
type ParcelConfig struct {
	ServiceURL   string
	LayerID      int
	LotPlanField string // combined identifier, e.g. "13SP181800"
	LotField     string // split fallback
	PlanField    string
}

// LayerConfig describes one category or point layer.
type LayerConfig struct {
	ServiceURL string
	LayerID    int
	CodeField  string
	NameField  string
}

// Config is the full service wiring for an Exporter. All services are
// ArcGIS REST map services queried in GeoJSON.
type Config struct {
	Parcel     ParcelConfig
	LandTypes  LayerConfig
	Vegetation LayerConfig

	// Bores is the optional registered groundwater bore point layer.
	// An empty ServiceURL disables bore placemarks regardless of
	// ExportOptions.IncludeBores.
	Bores LayerConfig

	// Easements is the optional easement polygon layer, clipped to each
	// parcel like categories. An empty ServiceURL disables it regardless
	// of ExportOptions.IncludeEasements.
	Easements LayerConfig

	// Timeout bounds a single page request. Zero means the default.
	Timeout time.Duration

	// PageSize is the per-request record cap. Zero means the default.
	PageSize int
}

// DefaultConfig returns the Queensland government service wiring.
func DefaultConfig() Config {
	return Config{
		Parcel: ParcelConfig{
			ServiceURL:   "https://spatial-gis.information.qld.gov.au/arcgis/rest/services/PlanningCadastre/LandParcelPropertyFramework/MapServer",
			LayerID:      4,
			LotPlanField: "lotplan",
			LotField:     "lot",
			PlanField:    "plan",
		},
		LandTypes: LayerConfig{
			ServiceURL: "https://spatial-gis.information.qld.gov.au/arcgis/rest/services/Environment/LandTypes/MapServer",
			LayerID:    1,
			CodeField:  "lt_code_1",
			NameField:  "lt_name_1",
		},
		Vegetation: LayerConfig{
			ServiceURL: "https://spatial-gis.information.qld.gov.au/arcgis/rest/services/Biota/VegetationManagement/MapServer",
			LayerID:    109,
			CodeField:  "rvm_cat",
			NameField:  "rvm_cat",
		},
		Timeout:  arcgis.DefaultTimeout,
		PageSize: arcgis.DefaultPageSize,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by environment
// variables. Recognized variables:
//
//	PARCEL_SERVICE_URL, PARCEL_LAYER_ID
//	LANDTYPES_SERVICE_URL, LANDTYPES_LAYER_ID,
//	LANDTYPES_CODE_FIELD, LANDTYPES_NAME_FIELD
//	VEG_SERVICE_URL, VEG_LAYER_ID, VEG_CODE_FIELD, VEG_NAME_FIELD
//	BORES_SERVICE_URL, BORES_LAYER_ID, BORES_REF_FIELD, BORES_LABEL_FIELD
//	EASEMENTS_SERVICE_URL, EASEMENTS_LAYER_ID,
//	EASEMENTS_CODE_FIELD, EASEMENTS_NAME_FIELD
//	ARCGIS_TIMEOUT (seconds), ARCGIS_MAX_RECORDS
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	envString(&cfg.Parcel.ServiceURL, "PARCEL_SERVICE_URL")
	envInt(&cfg.Parcel.LayerID, "PARCEL_LAYER_ID")

	envString(&cfg.LandTypes.ServiceURL, "LANDTYPES_SERVICE_URL")
	envInt(&cfg.LandTypes.LayerID, "LANDTYPES_LAYER_ID")
	envString(&cfg.LandTypes.CodeField, "LANDTYPES_CODE_FIELD")
	envString(&cfg.LandTypes.NameField, "LANDTYPES_NAME_FIELD")

	envString(&cfg.Vegetation.ServiceURL, "VEG_SERVICE_URL")
	envInt(&cfg.Vegetation.LayerID, "VEG_LAYER_ID")
	envString(&cfg.Vegetation.CodeField, "VEG_CODE_FIELD")
	envString(&cfg.Vegetation.NameField, "VEG_NAME_FIELD")

	envString(&cfg.Bores.ServiceURL, "BORES_SERVICE_URL")
	envInt(&cfg.Bores.LayerID, "BORES_LAYER_ID")
	envString(&cfg.Bores.CodeField, "BORES_REF_FIELD")
	envString(&cfg.Bores.NameField, "BORES_LABEL_FIELD")

	envString(&cfg.Easements.ServiceURL, "EASEMENTS_SERVICE_URL")
	envInt(&cfg.Easements.LayerID, "EASEMENTS_LAYER_ID")
	envString(&cfg.Easements.CodeField, "EASEMENTS_CODE_FIELD")
	envString(&cfg.Easements.NameField, "EASEMENTS_NAME_FIELD")

	if v, err := strconv.Atoi(os.Getenv("ARCGIS_TIMEOUT")); err == nil && v > 0 {
		cfg.Timeout = time.Duration(v) * time.Second
	}
	envInt(&cfg.PageSize, "ARCGIS_MAX_RECORDS")

	return cfg
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		*dst = v
	}
}

// arcgisConfig maps the public config onto the fetch client's config.
func (c Config) arcgisConfig() arcgis.Config {
	return arcgis.Config{
		Parcel: arcgis.ParcelLayer{
			ServiceURL:   c.Parcel.ServiceURL,
			LayerID:      c.Parcel.LayerID,
			LotPlanField: c.Parcel.LotPlanField,
			LotField:     c.Parcel.LotField,
			PlanField:    c.Parcel.PlanField,
		},
		Timeout:  c.Timeout,
		PageSize: c.PageSize,
	}
}

func (l LayerConfig) ref(name string) arcgis.LayerRef {
	return arcgis.LayerRef{
		Name:       name,
		ServiceURL: l.ServiceURL,
		LayerID:    l.LayerID,
		CodeField:  l.CodeField,
		NameField:  l.NameField,
	}
}
