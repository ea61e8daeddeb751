// Package wsbridge wires HTTP handlers into a ServeMux via routing helpers.
package wsbridge

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with the health check
// on "/" and the WebSocket bridge on "/ws".
func SetupRoutes(listener *Listener, occupancy Occupancy) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(occupancy))
	mux.Handle("/ws", listener)
	return mux
}
