// Package server implements the HTTP and WebSocket surface of the relay.
//
// The implementation is organized into specialized files for configuration,
// connection tracking, clients, routing, and HTTP handlers. Room semantics
// live in package chat; this package only adapts gorilla/websocket
// connections to chat.Conn and drives their pumps.
package server
