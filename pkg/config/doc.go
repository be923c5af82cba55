// Package config holds the server configuration: where moxy listens, how it
// logs, and which rule files are loaded at startup.
//
// Configuration is read from a YAML or JSON file, then overridden by
// MOXY_* environment variables, then by command-line flags. Rule files live
// in a directory scanned with glob patterns; each file binds one client id
// to an ordered rule list and is validated against an embedded JSON Schema
// before the rules reach the store.
package config
