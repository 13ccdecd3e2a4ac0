// Command lotexport exports Queensland land types for one or more
// lot/plan identifiers as GeoTIFF, KML, KMZ, GeoJSON or a JSON summary.
//
// Usage:
//
//	lotexport -lotplan 13SP181800 -format tiff -out 13SP181800.tif
//	lotexport -lotplan 13SP181800,2RP53435 -format kmz -veg -out merged.kmz
//	lotexport -lotplan 13SP181800 -format json
//
// Service endpoints default to the Queensland government ArcGIS
// services and can be overridden via environment variables (see
// landtypes.ConfigFromEnv); a .env file in the working directory is
// loaded if present.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/paddockmaps/landtypes/internal/logger"
	landtypes "github.com/paddockmaps/landtypes/pkg/v1"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lotexport:", err)
		os.Exit(1)
	}
}

func run() error {
	lotplan := flag.String("lotplan", "", "lot/plan identifier(s), comma separated (required)")
	format := flag.String("format", "tiff", "output format: tiff, kml, kmz, geojson or json")
	out := flag.String("out", "", "output file (default stdout)")
	maxPx := flag.Int("max-px", 0, "larger raster dimension in pixels (default 4096)")
	simplifyTol := flag.Float64("simplify", 0, "vector simplification tolerance in degrees (0 disables)")
	veg := flag.Bool("veg", false, "include the regulated vegetation layer")
	bores := flag.Bool("bores", false, "include groundwater bore placemarks (vector formats)")
	easements := flag.Bool("easements", false, "include parcel-clipped easements (vector formats)")
	workers := flag.Int("workers", 0, "concurrent parcel fetches for merged exports (default NumCPU)")
	flag.Parse()

	godotenv.Load()
	logger.Setup()

	lotplans := splitList(*lotplan)
	if len(lotplans) == 0 {
		return fmt.Errorf("-lotplan is required")
	}

	opts := landtypes.DefaultExportOptions()
	if *maxPx > 0 {
		opts.MaxPixels = *maxPx
	}
	opts.SimplifyTolerance = *simplifyTol
	opts.IncludeVegetation = *veg
	opts.IncludeBores = *bores
	opts.IncludeEasements = *easements
	if *workers > 0 {
		opts.Workers = *workers
	}

	exp := landtypes.New(landtypes.ConfigFromEnv())
	ctx := context.Background()

	var data []byte
	var err error
	switch *format {
	case "tiff":
		var res *landtypes.RasterResult
		res, err = exp.Raster(ctx, lotplans, opts)
		if res != nil {
			data = res.Data
		}
	case "kml":
		data, err = exp.KML(ctx, lotplans, opts)
	case "kmz":
		data, err = exp.KMZ(ctx, lotplans, opts)
	case "geojson":
		var vec *landtypes.VectorResult
		vec, err = exp.GeoJSON(ctx, lotplans, opts)
		if err == nil {
			data, err = json.MarshalIndent(vec, "", "  ")
			data = append(data, '\n')
		}
	case "json":
		var sum *landtypes.Summary
		sum, err = exp.Summary(ctx, lotplans, opts)
		if err == nil {
			data, err = json.MarshalIndent(sum, "", "  ")
			data = append(data, '\n')
		}
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
