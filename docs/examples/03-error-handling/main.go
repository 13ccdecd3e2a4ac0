package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	landtypes "github.com/paddockmaps/landtypes/pkg/v1"
)

func main() {
	exp := landtypes.New(landtypes.DefaultConfig())

	_, err := exp.Summary(context.Background(), []string{"1XX000000"}, landtypes.DefaultExportOptions())
	if err == nil {
		fmt.Println("export succeeded")
		return
	}

	// Branch on the typed errors to distinguish lookup misses from
	// upstream failures.
	var notFound *landtypes.ParcelNotFoundError
	var noCats *landtypes.NoCategoriesError
	var fetch *landtypes.FetchError

	switch {
	case errors.As(err, &notFound):
		fmt.Printf("no such parcel: %s\n", notFound.LotPlan)
	case errors.As(err, &noCats):
		fmt.Printf("parcel exists but no land types mapped: %v\n", noCats.LotPlans)
	case errors.As(err, &fetch):
		fmt.Printf("service failure on layer %s: %v\n", fetch.Layer, fetch.Err)
	default:
		log.Fatal(err)
	}
}
