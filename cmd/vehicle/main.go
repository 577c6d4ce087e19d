package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/redhat-partner-ecosystem/scootershare/api/firebase"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

func main() {

	var name string
	var zone string
	var lat float64
	var long float64

	flag.StringVar(&name, "name", "scooter-1", "Vehicle name")
	flag.StringVar(&zone, "zone", "ITU", "Zone the vehicle is placed in, also used as location label")
	flag.Float64Var(&lat, "lat", 0, "Latitude, overrides the zone center")
	flag.Float64Var(&long, "long", 0, "Longitude, overrides the zone center")
	flag.Parse()

	// a local .env file is optional
	godotenv.Load()

	pos, err := position(zone, lat, long)
	if err != nil {
		log.Fatal(err)
	}

	cl, err := firebase.NewClient(context.TODO())
	if err != nil {
		log.Fatal(err)
	}

	v, err := vehicle.NewRepository(cl, nil).Create(context.TODO(), name, zone, pos)
	if err != nil {
		log.Fatal(fmt.Errorf("can not create vehicle '%s': %w", name, err))
	}

	fmt.Fprintln(os.Stdout, v.ID)
}

// position returns lat/long if set, the center of zone otherwise
func position(zone string, lat, long float64) (geo.Coordinate, error) {
	if lat != 0 || long != 0 {
		return geo.NewCoordinate(lat, long)
	}
	z, ok := geo.DefaultCatalog().Lookup(zone)
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("unknown zone '%s'", zone)
	}
	return z.Center, nil
}
