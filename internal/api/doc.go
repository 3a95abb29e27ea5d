// Package api implements the HTTP REST API and WebSocket server for the
// UniFi bridge.
//
// This package provides:
//   - Read access to the object tree and current states
//   - State history queries backed by the SQLite history table
//   - Poll control: schedule a cycle, or run one and wait for its report
//   - A WebSocket stream of applied writes, filtered by path prefix
//   - Prometheus metrics and a health endpoint
//
// # Security
//
// When security.jwt.secret is set, every route except /api/v1/health needs
// an HS256 bearer token (see IssueToken). WebSocket clients may pass the
// token as ?token= because browsers cannot set headers on the handshake.
// With no secret configured the API is open and should stay on localhost.
//
// # WebSocket Protocol
//
// Clients send {"type":"subscribe","paths":["default.clients"]} to follow
// part of the tree, or no paths to follow all of it. With "snapshot":true
// the current values arrive first in one snapshot frame. Every later write
// arrives as {"type":"state","state":{"id":...,"val":...,"previous":...}}.
// See Frame for the full set of frame types.
package api
