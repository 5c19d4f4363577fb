// Package server implements the WebSocket relay: connection lifecycle, the
// chat subscription registry, and the authenticated message pipeline.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, frame dispatch, routing, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
