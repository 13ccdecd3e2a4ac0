package main

import (
	"context"
	"fmt"
	"log"
	"os"

	landtypes "github.com/paddockmaps/landtypes/pkg/v1"
)

func main() {
	// Create exporter against the Queensland services
	exp := landtypes.New(landtypes.DefaultConfig())

	// Render one lot/plan as a georeferenced GeoTIFF
	res, err := exp.Raster(context.Background(), []string{"13SP181800"}, landtypes.DefaultExportOptions())
	if err != nil {
		log.Fatal(err)
	}

	// Print raster info
	fmt.Printf("Raster: %dx%d px, %d bytes\n", res.Width, res.Height, len(res.Data))
	fmt.Printf("Bounds: [%.4f,%.4f] to [%.4f,%.4f]\n",
		res.Bounds.MinLon, res.Bounds.MinLat,
		res.Bounds.MaxLon, res.Bounds.MaxLat)

	// Print the legend
	for _, entry := range res.Legend {
		fmt.Printf("  %-6s %-40s %s %.2f ha\n", entry.Code, entry.Name, entry.ColorHex, entry.AreaHa)
	}

	if err := os.WriteFile("13SP181800.tif", res.Data, 0o644); err != nil {
		log.Fatal(err)
	}
}
