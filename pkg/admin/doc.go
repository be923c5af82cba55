// Package admin exposes the management API: rule inspection and replacement
// per client, exchange history, server status and Prometheus-style metrics.
//
// The API shares the proxy's listen port. Rule lists are replaced wholesale:
// a PUT either installs the full list or leaves the store untouched, so the
// matcher never sees a half-applied update.
package admin
