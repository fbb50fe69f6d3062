// Package middleware provides HTTP middleware for the delivery API.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with stream tokens redacted
//   - Prometheus request metrics labelled by mux route template
//   - Bearer JWT authentication for the endpoints that mint stream URLs
package middleware
