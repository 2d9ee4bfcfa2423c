package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var currentLocation *time.Location

// Initialize sets the timezone from the TZ environment variable, falling
// back to UTC. Should be called at program start; Now self-initializes as a
// safety net.
func Initialize() {
	tzName := "UTC"
	if envTZ := os.Getenv("TZ"); envTZ != "" {
		tzName = envTZ
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s from environment: %v. Falling back to UTC.", tzName, err)
		currentLocation = time.UTC
		return
	}
	currentLocation = loc
}

// Now returns the current time in the configured timezone.
func Now() time.Time {
	if currentLocation == nil {
		Initialize()
	}
	return time.Now().In(currentLocation)
}

// DateKey returns the YYYY-MM-DD key for daily counters in the configured
// timezone.
func DateKey() string {
	return Now().Format("2006-01-02")
}
