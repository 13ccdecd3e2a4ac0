package landtypes

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paddockmaps/landtypes/internal/colors"
	"github.com/paddockmaps/landtypes/internal/metrics"
)

func rect(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// fakeLayers is the dataset served by the fake ArcGIS service, keyed by
// the first path segment ("parcel", "land", "veg", "bores", "ease").
type fakeLayers map[string]*geojson.FeatureCollection

// fakeArcGIS answers layer /query requests in GeoJSON. Parcel queries
// only match when the where clause names the known lot/plan.
func fakeArcGIS(t *testing.T, layers fakeLayers, knownLot string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seg := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)[0]
		fc := geojson.NewFeatureCollection()
		if src, ok := layers[seg]; ok {
			if seg != "parcel" || strings.Contains(r.URL.Query().Get("where"), "'"+knownLot+"'") {
				fc = src
			}
		}
		body, err := json.Marshal(fc)
		if err != nil {
			t.Errorf("marshal layer %s: %v", seg, err)
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(body)
	}))
}

// testConfig wires every layer to srv with distinct path prefixes.
func testConfig(srv *httptest.Server) Config {
	cfg := DefaultConfig()
	cfg.Parcel.ServiceURL = srv.URL + "/parcel"
	cfg.LandTypes.ServiceURL = srv.URL + "/land"
	cfg.Vegetation.ServiceURL = srv.URL + "/veg"
	cfg.Bores = LayerConfig{
		ServiceURL: srv.URL + "/bores",
		LayerID:    5,
		CodeField:  "bore_no",
		NameField:  "status",
	}
	cfg.Easements = LayerConfig{
		ServiceURL: srv.URL + "/ease",
		LayerID:    7,
		CodeField:  "parcel_typ",
		NameField:  "tenure",
	}
	return cfg
}

// testLayers builds the standard scenario: a 1x1 degree parcel, land
// type A over its western half, land type B over its north-east
// quarter, leaving the south-east quarter uncovered.
func testLayers() fakeLayers {
	parcel := geojson.NewFeatureCollection()
	parcel.Append(geojson.NewFeature(rect(152, -28, 153, -27)))

	land := geojson.NewFeatureCollection()
	a := geojson.NewFeature(rect(151.9, -28.1, 152.5, -26.9))
	a.Properties = geojson.Properties{"lt_code_1": "A", "lt_name_1": "Alpha"}
	land.Append(a)
	b := geojson.NewFeature(rect(152.5, -27.5, 153.1, -26.9))
	b.Properties = geojson.Properties{"lt_code_1": "B", "lt_name_1": "Bravo"}
	land.Append(b)

	veg := geojson.NewFeatureCollection()
	v := geojson.NewFeature(rect(152.2, -27.8, 152.4, -27.6))
	v.Properties = geojson.Properties{"rvm_cat": "X"}
	veg.Append(v)

	bores := geojson.NewFeatureCollection()
	inside := geojson.NewFeature(orb.Point{152.3, -27.3})
	inside.Properties = geojson.Properties{"bore_no": "RN100", "status": "Existing"}
	outside := geojson.NewFeature(orb.Point{153.5, -27.3})
	outside.Properties = geojson.Properties{"bore_no": "RN200", "status": "Existing"}
	dup := geojson.NewFeature(orb.Point{152.35, -27.35})
	dup.Properties = geojson.Properties{"bore_no": "RN100", "status": "Existing"}
	bores.Append(inside)
	bores.Append(outside)
	bores.Append(dup)

	ease := geojson.NewFeatureCollection()
	es := geojson.NewFeature(rect(152.6, -27.9, 153.2, -27.7))
	es.Properties = geojson.Properties{"parcel_typ": "EASEMENT", "tenure": "Easement in gross"}
	ease.Append(es)

	return fakeLayers{"parcel": parcel, "land": land, "veg": veg, "bores": bores, "ease": ease}
}

func TestRasterEndToEnd(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	opts := DefaultExportOptions()
	opts.MaxPixels = 256
	res, err := exp.Raster(context.Background(), []string{"13sp181800"}, opts)
	if err != nil {
		t.Fatalf("Raster: %v", err)
	}

	if res.Width != res.Height {
		t.Errorf("square parcel should raster square, got %dx%d", res.Width, res.Height)
	}
	wantBounds := Bounds{MinLon: 152, MaxLon: 153, MinLat: -28, MaxLat: -27}
	if res.Bounds != wantBounds {
		t.Errorf("Bounds = %+v, want %+v", res.Bounds, wantBounds)
	}

	// Legend sorted by descending area: A covers half the parcel, B a
	// quarter.
	if len(res.Legend) != 2 {
		t.Fatalf("legend has %d entries, want 2", len(res.Legend))
	}
	if res.Legend[0].Code != "A" || res.Legend[1].Code != "B" {
		t.Errorf("legend order = %s, %s; want A, B", res.Legend[0].Code, res.Legend[1].Code)
	}
	if res.Legend[0].Name != "Alpha" {
		t.Errorf("legend name = %q, want Alpha", res.Legend[0].Name)
	}
	if res.Legend[0].AreaHa <= res.Legend[1].AreaHa {
		t.Errorf("legend areas not descending: %g then %g", res.Legend[0].AreaHa, res.Legend[1].AreaHa)
	}
	wantHex := colors.HexRGB(colors.FromCode("A"))
	if res.Legend[0].ColorHex != wantHex {
		t.Errorf("legend color = %s, want %s", res.Legend[0].ColorHex, wantHex)
	}

	// Sample decoded pixels out of the GeoTIFF strip via the transform:
	// west half A, north-east quarter B, south-east quarter transparent.
	pix := decodeStrip(t, res.Data, res.Width, res.Height)
	at := func(lon, lat float64) [4]uint8 {
		col := int((lon - res.Transform.OriginX) / res.Transform.PixelW)
		row := int((res.Transform.OriginY - lat) / res.Transform.PixelH)
		i := (row*res.Width + col) * 4
		return [4]uint8{pix[i], pix[i+1], pix[i+2], pix[i+3]}
	}
	ca := colors.FromCode("A")
	cb := colors.FromCode("B")
	if got := at(152.25, -27.5); got != [4]uint8{ca.R, ca.G, ca.B, 255} {
		t.Errorf("west half pixel = %v, want color A %v", got, ca)
	}
	if got := at(152.75, -27.25); got != [4]uint8{cb.R, cb.G, cb.B, 255} {
		t.Errorf("north-east pixel = %v, want color B %v", got, cb)
	}
	if got := at(152.75, -27.75); got[3] != 0 {
		t.Errorf("south-east pixel = %v, want transparent", got)
	}
}

// decodeStrip pulls the raw RGBA bytes back out of a GeoTIFF: walk the
// IFD for the strip offset and byte count, then inflate the strip.
func decodeStrip(t *testing.T, data []byte, width, height int) []byte {
	t.Helper()
	if len(data) < 8 || string(data[0:2]) != "II" || binary.LittleEndian.Uint16(data[2:4]) != 42 {
		t.Fatal("not a little-endian TIFF")
	}
	ifd := binary.LittleEndian.Uint32(data[4:8])
	n := int(binary.LittleEndian.Uint16(data[ifd : ifd+2]))
	var off, cnt uint32
	for i := 0; i < n; i++ {
		base := int(ifd) + 2 + i*12
		switch binary.LittleEndian.Uint16(data[base : base+2]) {
		case 273:
			off = binary.LittleEndian.Uint32(data[base+8 : base+12])
		case 279:
			cnt = binary.LittleEndian.Uint32(data[base+8 : base+12])
		}
	}
	if off == 0 || cnt == 0 {
		t.Fatal("GeoTIFF missing strip offset or byte count")
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[off : off+cnt]))
	if err != nil {
		t.Fatalf("strip is not a zlib stream: %v", err)
	}
	pix, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress strip: %v", err)
	}
	if len(pix) != width*height*4 {
		t.Fatalf("strip decompresses to %d bytes, want %d", len(pix), width*height*4)
	}
	return pix
}

func TestSummary(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	sum, err := exp.Summary(context.Background(), []string{" 13SP181800 "}, DefaultExportOptions())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if len(sum.LotPlans) != 1 || sum.LotPlans[0] != "13SP181800" {
		t.Errorf("LotPlans = %v, want [13SP181800]", sum.LotPlans)
	}
	wantBounds := Bounds{MinLon: 152, MaxLon: 153, MinLat: -28, MaxLat: -27}
	if sum.Bounds != wantBounds {
		t.Errorf("Bounds = %+v, want %+v", sum.Bounds, wantBounds)
	}
	if sum.Width != 4096 || sum.Height != 4096 {
		t.Errorf("size = %dx%d, want 4096x4096", sum.Width, sum.Height)
	}
	if len(sum.Legend) != 2 {
		t.Errorf("legend has %d entries, want 2", len(sum.Legend))
	}
}

func TestSelfMerge(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	ctx := context.Background()
	opts := DefaultExportOptions()

	single, err := exp.Summary(ctx, []string{"13SP181800"}, opts)
	if err != nil {
		t.Fatalf("single Summary: %v", err)
	}
	merged, err := exp.Summary(ctx, []string{"13SP181800", "13SP181800"}, opts)
	if err != nil {
		t.Fatalf("merged Summary: %v", err)
	}

	if merged.Bounds != single.Bounds {
		t.Errorf("self-merge changed bounds: %+v vs %+v", merged.Bounds, single.Bounds)
	}
	if len(merged.LotPlans) != 2 {
		t.Errorf("LotPlans = %v, want both entries kept", merged.LotPlans)
	}
	// Duplicate parcels double the category areas but not the legend.
	if len(merged.Legend) != len(single.Legend) {
		t.Fatalf("legend size changed: %d vs %d", len(merged.Legend), len(single.Legend))
	}
	for i := range merged.Legend {
		want := 2 * single.Legend[i].AreaHa
		if math.Abs(merged.Legend[i].AreaHa-want) > want*1e-9 {
			t.Errorf("legend %s area = %g, want doubled %g",
				merged.Legend[i].Code, merged.Legend[i].AreaHa, want)
		}
	}
}

func TestKMLLayersAndFolders(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	opts := DefaultExportOptions()
	opts.IncludeVegetation = true
	opts.IncludeBores = true

	doc, err := exp.KML(context.Background(), []string{"13SP181800"}, opts)
	if err != nil {
		t.Fatalf("KML: %v", err)
	}
	text := string(doc)
	for _, want := range []string{
		"<name>QLD Land Types - 13SP181800</name>",
		"<name>Land Types - 13SP181800</name>",
		"<name>Vegetation - 13SP181800</name>",
		"<name>Bores - 13SP181800</name>",
		"<name>Category X</name>",
		"<name>RN100</name>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("document missing %q", want)
		}
	}
	// The outside bore and the duplicate registration are dropped.
	if strings.Contains(text, "RN200") {
		t.Error("bore outside the parcel must not appear")
	}
	if got := strings.Count(text, "<name>RN100</name>"); got != 1 {
		t.Errorf("bore RN100 appears %d times, want 1", got)
	}

	merged, err := exp.KML(context.Background(), []string{"13SP181800", "13SP181800"}, opts)
	if err != nil {
		t.Fatalf("merged KML: %v", err)
	}
	if got := strings.Count(string(merged), "<name>13SP181800</name>"); got != 2 {
		t.Errorf("merged document has %d lot folders, want 2", got)
	}
	if !strings.Contains(string(merged), "<name>Land Types</name>") {
		t.Error("merged document missing unsuffixed layer subfolder")
	}
}

func TestKMLMergedOverviewFolders(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	opts := DefaultExportOptions()
	opts.IncludeVegetation = true
	opts.IncludeBores = true

	doc, err := exp.KML(context.Background(), []string{"13SP181800", "13SP181800"}, opts)
	if err != nil {
		t.Fatalf("merged KML: %v", err)
	}
	text := string(doc)

	for _, want := range []string{
		"<name>Merged Land Types (All Properties)</name>",
		"<name>Merged Vegetation (All Properties)</name>",
		"<name>Groundwater Bores (All Properties)</name>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("merged document missing overview folder %q", want)
		}
	}

	// Overview folders come before the per-lot folders.
	if strings.Index(text, "Merged Land Types") > strings.Index(text, "<name>13SP181800</name>") {
		t.Error("overview folders must precede lot folders")
	}

	// Each category appears once per lot folder plus once dissolved in
	// the overview.
	if got := strings.Count(text, "<name>Alpha</name>"); got != 3 {
		t.Errorf("Alpha appears %d times, want 3", got)
	}
	if got := strings.Count(text, "<name>Category X</name>"); got != 3 {
		t.Errorf("Category X appears %d times, want 3", got)
	}
	// The merged bore folder deduplicates across lots.
	if got := strings.Count(text, "<name>RN100</name>"); got != 3 {
		t.Errorf("RN100 appears %d times, want 3", got)
	}

	// A single-lot document carries no overview folders.
	single, err := exp.KML(context.Background(), []string{"13SP181800"}, opts)
	if err != nil {
		t.Fatalf("single KML: %v", err)
	}
	if strings.Contains(string(single), "All Properties") {
		t.Error("single-lot document must not have overview folders")
	}
}

func TestGeoJSONVector(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	opts := DefaultExportOptions()
	opts.IncludeVegetation = true
	opts.IncludeBores = true
	opts.IncludeEasements = true

	res, err := exp.GeoJSON(context.Background(), []string{"13SP181800"}, opts)
	if err != nil {
		t.Fatalf("GeoJSON: %v", err)
	}

	if len(res.Parcels.Features) != 1 {
		t.Fatalf("parcels has %d features, want 1", len(res.Parcels.Features))
	}
	if got := res.Parcels.Features[0].Properties["lotplan"]; got != "13SP181800" {
		t.Errorf("parcel lotplan = %v, want 13SP181800", got)
	}

	if len(res.LandTypes.Features) != 2 {
		t.Fatalf("landtypes has %d features, want 2", len(res.LandTypes.Features))
	}
	props := res.LandTypes.Features[0].Properties
	if props["code"] != "A" || props["name"] != "Alpha" || props["lotplan"] != "13SP181800" {
		t.Errorf("feature properties = %v", props)
	}
	if props["color"] != colors.HexRGB(colors.FromCode("A")) {
		t.Errorf("feature color = %v, want derived from code", props["color"])
	}
	if area, ok := props["area_ha"].(float64); !ok || area <= 0 {
		t.Errorf("feature area_ha = %v, want positive", props["area_ha"])
	}

	if res.Vegetation == nil || len(res.Vegetation.Features) != 1 {
		t.Fatalf("vegetation = %v, want one feature", res.Vegetation)
	}
	if got := res.Vegetation.Features[0].Properties["name"]; got != "Category X" {
		t.Errorf("vegetation name = %v, want Category X", got)
	}

	// The easement extends past the eastern boundary and is clipped back
	// to the parcel.
	if res.Easements == nil || len(res.Easements.Features) != 1 {
		t.Fatalf("easements = %v, want one feature", res.Easements)
	}
	eb := res.Easements.Features[0].Geometry.Bound()
	if eb.Max[0] > 153+1e-9 {
		t.Errorf("easement bound %v extends past parcel edge 153", eb)
	}

	if res.Bores == nil || len(res.Bores.Features) != 1 {
		t.Fatalf("bores = %v, want one feature", res.Bores)
	}
	if got := res.Bores.Features[0].Properties["ref"]; got != "RN100" {
		t.Errorf("bore ref = %v, want RN100", got)
	}

	wantBounds := Bounds{MinLon: 152, MaxLon: 153, MinLat: -28, MaxLat: -27}
	if res.Bounds != wantBounds {
		t.Errorf("Bounds = %+v, want %+v", res.Bounds, wantBounds)
	}
	if len(res.Legend) != 2 || res.Legend[0].Code != "A" {
		t.Errorf("legend = %+v, want A first", res.Legend)
	}

	// The result must serialize as plain GeoJSON containers.
	body, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"FeatureCollection"`) {
		t.Error("marshalled result missing FeatureCollection type")
	}
}

func TestKMZCountsExportOnce(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	kmlBefore := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues("kml"))
	kmzBefore := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues("kmz"))

	if _, err := exp.KMZ(context.Background(), []string{"13SP181800"}, DefaultExportOptions()); err != nil {
		t.Fatalf("KMZ: %v", err)
	}

	if got := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues("kmz")) - kmzBefore; got != 1 {
		t.Errorf("kmz exports moved by %g, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues("kml")) - kmlBefore; got != 0 {
		t.Errorf("kml exports moved by %g on a kmz export, want 0", got)
	}
}

func TestParcelNotFound(t *testing.T) {
	srv := fakeArcGIS(t, testLayers(), "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	_, err := exp.Summary(context.Background(), []string{"99RP999999"}, DefaultExportOptions())
	var notFound *ParcelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ParcelNotFoundError", err)
	}
	if notFound.LotPlan != "99RP999999" {
		t.Errorf("LotPlan = %q, want 99RP999999", notFound.LotPlan)
	}
}

func TestNoCategories(t *testing.T) {
	layers := testLayers()
	layers["land"] = geojson.NewFeatureCollection()
	srv := fakeArcGIS(t, layers, "13SP181800")
	defer srv.Close()

	exp := New(testConfig(srv))
	_, err := exp.Raster(context.Background(), []string{"13SP181800"}, DefaultExportOptions())
	var noCats *NoCategoriesError
	if !errors.As(err, &noCats) {
		t.Fatalf("err = %v, want NoCategoriesError", err)
	}
	if len(noCats.LotPlans) != 1 || noCats.LotPlans[0] != "13SP181800" {
		t.Errorf("LotPlans = %v, want [13SP181800]", noCats.LotPlans)
	}
}

func TestFetchErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	exp := New(testConfig(srv))
	_, err := exp.Summary(context.Background(), []string{"13SP181800"}, DefaultExportOptions())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if fe.Layer != "parcel" {
		t.Errorf("Layer = %q, want parcel", fe.Layer)
	}
}

func TestEmptyRequest(t *testing.T) {
	exp := New(DefaultConfig())
	if _, err := exp.Summary(context.Background(), nil, DefaultExportOptions()); err == nil {
		t.Fatal("expected error for empty lotplan list")
	}
	if _, err := exp.Summary(context.Background(), []string{"  "}, DefaultExportOptions()); err == nil {
		t.Fatal("expected error for blank lotplan")
	}
}
