package main

import (
	"context"
	"fmt"
	"log"
	"os"

	landtypes "github.com/paddockmaps/landtypes/pkg/v1"
)

func main() {
	exp := landtypes.New(landtypes.DefaultConfig())

	// Merged exports accept multiple lot/plans; parcels are fetched
	// concurrently and the document nests one folder per lot.
	opts := landtypes.DefaultExportOptions()
	opts.IncludeVegetation = true
	opts.SimplifyTolerance = 0.00001 // about 1 m at the equator

	kmz, err := exp.KMZ(context.Background(), []string{"13SP181800", "2RP53435"}, opts)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.WriteFile("merged.kmz", kmz, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wrote merged.kmz (%d bytes)\n", len(kmz))
}
