package kmlout

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/paddockmaps/landtypes/internal/colors"
	"github.com/paddockmaps/landtypes/internal/geometry"
)

func square(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}}
}

func TestWriteKMLStructure(t *testing.T) {
	folders := []Folder{
		{
			Name: "13SP181800",
			Sub: []Folder{
				{
					Name: "Land types",
					Features: []geometry.ClippedFeature{
						{Geom: square(152, -28, 153, -27), Code: "3a", Name: "Brigalow", AreaHa: 12.5},
						{Geom: square(153, -28, 154, -27), Code: "9b", Name: "Box flats", AreaHa: 4.25},
					},
				},
				{
					Name: "Bores",
					Points: []PointPlacemark{
						{Name: "RN123456", Description: "Registered bore", Lon: 152.5, Lat: -27.5},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteKML(&buf, "Land types for 13SP181800", folders); err != nil {
		t.Fatalf("WriteKML: %v", err)
	}
	doc := buf.String()

	for _, want := range []string{
		"<name>Land types for 13SP181800</name>",
		"<name>13SP181800</name>",
		"<name>Land types</name>",
		"<name>Brigalow</name>",
		"<name>Box flats</name>",
		"<name>RN123456</name>",
		"<styleUrl>#s_3a</styleUrl>",
		"<styleUrl>#s_9b</styleUrl>",
		`id="s_3a"`,
		`id="s_9b"`,
		"<width>1.2</width>",
		"152.5,-27.5",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}

	// One shared style per distinct code, not per placemark.
	if got := strings.Count(doc, `id="s_3a"`); got != 1 {
		t.Errorf("style s_3a defined %d times, want 1", got)
	}

	// Fill color carries the translucent alpha in KML aabbggrr order.
	c := colors.FromCode("3a")
	wantFill := fmt.Sprintf("a0%02x%02x%02x", c.B, c.G, c.R)
	if !strings.Contains(doc, wantFill) {
		t.Errorf("document missing fill color %q", wantFill)
	}

	// Outline is opaque black.
	if !strings.Contains(doc, "ff000000") {
		t.Errorf("document missing opaque black outline color")
	}
}

func TestWriteKMLHoles(t *testing.T) {
	geom := orb.MultiPolygon{{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}},
	}}
	folders := []Folder{{
		Name:     "lot",
		Features: []geometry.ClippedFeature{{Geom: geom, Code: "X", Name: "Holed"}},
	}}

	var buf bytes.Buffer
	if err := WriteKML(&buf, "doc", folders); err != nil {
		t.Fatalf("WriteKML: %v", err)
	}
	doc := buf.String()
	if !strings.Contains(doc, "<outerBoundaryIs>") {
		t.Error("missing outerBoundaryIs")
	}
	if !strings.Contains(doc, "<innerBoundaryIs>") {
		t.Error("missing innerBoundaryIs")
	}
}

func TestWriteKMLMultiGeometry(t *testing.T) {
	geom := orb.MultiPolygon{
		square(0, 0, 1, 1)[0],
		square(2, 2, 3, 3)[0],
	}
	folders := []Folder{{
		Name:     "lot",
		Features: []geometry.ClippedFeature{{Geom: geom, Code: "X", Name: "Split"}},
	}}

	var buf bytes.Buffer
	if err := WriteKML(&buf, "doc", folders); err != nil {
		t.Fatalf("WriteKML: %v", err)
	}
	if !strings.Contains(buf.String(), "<MultiGeometry>") {
		t.Error("disjoint polygons should render as MultiGeometry")
	}
}

func TestStyleID(t *testing.T) {
	cases := map[string]string{
		"3a":       "s_3a",
		"UNK":      "s_UNK",
		"a b/c":    "s_a_b_c",
		"code-9_x": "s_code-9_x",
	}
	for in, want := range cases {
		if got := styleID(in); got != want {
			t.Errorf("styleID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteKMZ(t *testing.T) {
	docKML := []byte("<kml/>")
	assets := map[string][]byte{
		"files/b.png": []byte("bbb"),
		"files/a.png": []byte("aaa"),
	}

	var buf bytes.Buffer
	if err := WriteKMZ(&buf, docKML, assets); err != nil {
		t.Fatalf("WriteKMZ: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("archive has %d entries, want 3", len(zr.File))
	}
	wantOrder := []string{"doc.kml", "files/a.png", "files/b.png"}
	for i, f := range zr.File {
		if f.Name != wantOrder[i] {
			t.Errorf("entry %d = %q, want %q", i, f.Name, wantOrder[i])
		}
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open doc.kml: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read doc.kml: %v", err)
	}
	if !bytes.Equal(got, docKML) {
		t.Errorf("doc.kml content = %q, want %q", got, docKML)
	}
}
