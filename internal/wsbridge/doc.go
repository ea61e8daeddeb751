// Package wsbridge lets browser and other WebSocket clients reach the relay.
//
// A Listener implements net.Listener on top of gorilla/websocket upgrades, so
// the relay's accept loop serves WebSocket peers exactly like TCP peers: each
// WebSocket message is one chat message and each reply goes out as one text
// message. The package also carries the HTTP plumbing around it: origin
// checks, a health endpoint and server start/shutdown helpers.
package wsbridge
