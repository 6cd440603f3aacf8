package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/ride-sync/internal/models"
)

// coordFlag parses "lat,lon" command-line values.
type coordFlag struct {
	models.Coord
	set bool
}

func (c *coordFlag) String() string {
	if !c.set {
		return ""
	}
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func (c *coordFlag) Set(v string) error {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return fmt.Errorf("expected lat,lon, got %q", v)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("bad latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("bad longitude: %w", err)
	}
	c.Coord = models.Coord{Lat: lat, Lon: lon}
	c.set = true
	return nil
}
