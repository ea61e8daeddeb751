// Package wsbridge exposes HTTP handlers for the bridge, including the health
// check that reports registry occupancy.
package wsbridge

import (
	"fmt"
	"log"
	"net/http"
)

// Occupancy reports how many clients are live out of how many slots.
type Occupancy interface {
	Count() int
	Capacity() int
}

// HealthHandler responds with a plain text status line including the number
// of live clients.
func HealthHandler(occupancy Occupancy) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if _, err := fmt.Fprintf(w, "relaychat is running: %d/%d clients", occupancy.Count(), occupancy.Capacity()); err != nil {
			log.Printf("Error writing health response: %v", err)
		}
	}
}
