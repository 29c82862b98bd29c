// Package server implements the WebSocket transport and the HTTP API of the
// presence service.
//
// Each WebSocket connection is a Client with a read pump and a write pump.
// The Hub starts and stops those pumps; the read pump feeds frames to the
// dispatcher, which owns connection state, rooms and presence. The HTTP API
// exposes health, the legacy send-message broadcast and presence queries.
package server
