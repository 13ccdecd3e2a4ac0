// Package arcgis queries ArcGIS REST map services for parcel and category
// features. It handles result paging, spatial envelope filters, and reducing
// dynamic attribute dictionaries to the fixed schema the pipeline needs.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/paddockmaps/landtypes/internal/logger"
	"github.com/paddockmaps/landtypes/internal/metrics"
)

const (
	// DefaultPageSize matches the typical ArcGIS server transfer limit.
	DefaultPageSize = 2000

	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 45 * time.Second
)

// LayerRef identifies one queryable layer on a map service.
type LayerRef struct {
	Name       string // short name used in logs, errors and metrics
	ServiceURL string // MapServer/FeatureServer base URL
	LayerID    int
	CodeField  string // attribute carrying the category code
	NameField  string // attribute carrying the display label
}

// ParcelLayer describes the cadastre layer and its lot/plan attributes.
// LotPlanField holds the combined identifier; LotField and PlanField support
// the split-field fallback lookup.
type ParcelLayer struct {
	ServiceURL   string
	LayerID      int
	LotPlanField string
	LotField     string
	PlanField    string
}

// Config is the explicit service wiring for a Client. Passing it at
// construction (rather than reading globals) keeps the client testable
// against local doubles.
type Config struct {
	Parcel   ParcelLayer
	Timeout  time.Duration
	PageSize int
}

// Envelope is a spatial filter rectangle in EPSG:3857 (web mercator meters).
type Envelope struct {
	XMin, YMin, XMax, YMax float64
}

// esriEnvelope is the wire form of an envelope filter.
type esriEnvelope struct {
	XMin             float64 `json:"xmin"`
	YMin             float64 `json:"ymin"`
	XMax             float64 `json:"xmax"`
	YMax             float64 `json:"ymax"`
	SpatialReference struct {
		WKID int `json:"wkid"`
	} `json:"spatialReference"`
}

// Client fetches features from ArcGIS REST services.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client around cfg. A nil httpClient gets a default
// client bounded by cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// PageSize reports the effective page size (useful for tests).
func (c *Client) PageSize() int { return c.cfg.PageSize }

var lotPlanRe = regexp.MustCompile(`^(\d+)([A-Z]+[A-Z0-9]+)$`)

// NormalizeLotPlan trims and uppercases a lot/plan identifier.
func NormalizeLotPlan(lotplan string) string {
	return strings.ToUpper(strings.TrimSpace(lotplan))
}

// SplitLotPlan splits a combined identifier such as "13SP181800" into
// ("13", "SP181800"). Both results are empty when the input does not parse.
func SplitLotPlan(lotplan string) (lot, plan string) {
	m := lotPlanRe.FindStringSubmatch(NormalizeLotPlan(lotplan))
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// FetchParcel looks up the cadastre features for one lot/plan, in EPSG:4326.
//
// It first queries the combined lot/plan field, then falls back to a split
// LOT + PLAN query when configured. Zero features is a valid outcome and is
// returned as an empty collection; the caller decides whether that means
// "parcel not found".
func (c *Client) FetchParcel(ctx context.Context, lotplan string) (*geojson.FeatureCollection, error) {
	lp := NormalizeLotPlan(lotplan)
	if lp == "" {
		return nil, &FetchError{Layer: "parcel", Err: fmt.Errorf("lotplan is required")}
	}
	pl := c.cfg.Parcel
	if pl.ServiceURL == "" || pl.LayerID < 0 {
		return nil, &FetchError{Layer: "parcel", Err: fmt.Errorf("parcel service not configured")}
	}

	common := url.Values{}
	common.Set("outFields", "*")
	common.Set("outSR", "4326")

	if pl.LotPlanField != "" {
		params := cloneValues(common)
		params.Set("where", fmt.Sprintf("UPPER(%s)='%s'", pl.LotPlanField, escapeLiteral(lp)))
		fc, err := c.query(ctx, "parcel", pl.ServiceURL, pl.LayerID, params, false)
		if err != nil {
			return nil, err
		}
		if len(fc.Features) > 0 {
			return fc, nil
		}
	}

	if pl.LotField != "" && pl.PlanField != "" {
		lot, plan := SplitLotPlan(lp)
		if lot != "" && plan != "" {
			params := cloneValues(common)
			params.Set("where", fmt.Sprintf("UPPER(%s)='%s' AND UPPER(%s)='%s'",
				pl.LotField, escapeLiteral(lot), pl.PlanField, escapeLiteral(plan)))
			fc, err := c.query(ctx, "parcel", pl.ServiceURL, pl.LayerID, params, false)
			if err != nil {
				return nil, err
			}
			if len(fc.Features) > 0 {
				return fc, nil
			}
		}
	}

	return geojson.NewFeatureCollection(), nil
}

// FetchByEnvelope returns the features of a category layer intersecting env,
// normalized to the fixed code/name schema, in EPSG:4326. The full set is
// returned even when the service pages its results.
func (c *Client) FetchByEnvelope(ctx context.Context, layer LayerRef, env Envelope) ([]Feature, error) {
	fc, err := c.rawByEnvelope(ctx, layer, env)
	if err != nil {
		return nil, err
	}
	return normalizeFeatures(fc, layer), nil
}

// FetchPointsByEnvelope returns point features intersecting env, keyed by the
// layer's code field (for example a bore's registered number) and labeled by
// its name field.
func (c *Client) FetchPointsByEnvelope(ctx context.Context, layer LayerRef, env Envelope) ([]PointFeature, error) {
	fc, err := c.rawByEnvelope(ctx, layer, env)
	if err != nil {
		return nil, err
	}
	return normalizePoints(fc, layer), nil
}

func (c *Client) rawByEnvelope(ctx context.Context, layer LayerRef, env Envelope) (*geojson.FeatureCollection, error) {
	if layer.ServiceURL == "" || layer.LayerID < 0 {
		return nil, &FetchError{Layer: layer.Name, Err: fmt.Errorf("layer not configured")}
	}
	var e esriEnvelope
	e.XMin, e.YMin, e.XMax, e.YMax = env.XMin, env.YMin, env.XMax, env.YMax
	e.SpatialReference.WKID = 3857
	geomJSON, err := json.Marshal(e)
	if err != nil {
		return nil, &FetchError{Layer: layer.Name, Err: err}
	}

	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("geometry", string(geomJSON))
	params.Set("geometryType", "esriGeometryEnvelope")
	params.Set("inSR", "3857")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("outFields", "*")
	params.Set("outSR", "4326")

	return c.query(ctx, layer.Name, layer.ServiceURL, layer.LayerID, params, true)
}

// query performs a layer /query returning f=geojson, paging with
// resultOffset until a page comes back smaller than the page size. A final
// page of exactly the page size triggers one more (empty) request, so a
// boundary-case last page is never dropped.
func (c *Client) query(ctx context.Context, layerName, serviceURL string, layerID int, params url.Values, paginate bool) (*geojson.FeatureCollection, error) {
	queryURL := fmt.Sprintf("%s/%d/query", strings.TrimRight(serviceURL, "/"), layerID)

	out := geojson.NewFeatureCollection()
	offset := 0
	for {
		page := cloneValues(params)
		page.Set("f", "geojson")
		page.Set("returnGeometry", "true")
		page.Set("resultOffset", strconv.Itoa(offset))
		page.Set("resultRecordCount", strconv.Itoa(c.cfg.PageSize))

		fc, err := c.fetchPage(ctx, layerName, queryURL, page)
		if err != nil {
			return nil, err
		}
		out.Features = append(out.Features, fc.Features...)

		if !paginate || len(fc.Features) < c.cfg.PageSize {
			return out, nil
		}
		offset += c.cfg.PageSize
	}
}

func (c *Client) fetchPage(ctx context.Context, layerName, queryURL string, params url.Values) (*geojson.FeatureCollection, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, queryURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FetchError{Layer: layerName, Err: err}
	}

	metrics.FetchRequestsTotal.WithLabelValues(layerName).Inc()
	t0 := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues(layerName).Inc()
		logger.L().Error("arcgis_http_error", "layer", layerName, "err", err)
		return nil, &FetchError{Layer: layerName, Err: err}
	}
	defer resp.Body.Close()
	metrics.FetchDurationSeconds.WithLabelValues(layerName).Observe(time.Since(t0).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FetchFailuresTotal.WithLabelValues(layerName).Inc()
		return nil, &FetchError{Layer: layerName, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues(layerName).Inc()
		return nil, &FetchError{Layer: layerName, Err: err}
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues(layerName).Inc()
		return nil, &FetchError{Layer: layerName, Err: fmt.Errorf("non-GeoJSON response: %w", err)}
	}
	logger.L().Debug("arcgis_page", "layer", layerName, "features", len(fc.Features))
	return fc, nil
}

// escapeLiteral doubles single quotes inside a where-clause string literal.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
