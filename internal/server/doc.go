// Package server implements the display server: it serves the synced bundle from the
// project directory and relays the upstream events feed to the browser at /api/events.
package server
