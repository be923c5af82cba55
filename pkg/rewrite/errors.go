package rewrite

import "errors"

// Error categories of the rewrite pipeline. Wrapped errors carry the detail;
// handlers branch with errors.Is.
var (
	// ErrBadRequest marks an inbound request the handler cannot interpret:
	// a missing or unparseable url parameter, or a POST body that declares
	// JSON but does not parse. Answered 400, no events.
	ErrBadRequest = errors.New("bad rewrite request")

	// ErrUpstream marks any forwarder failure: DNS, connect, TLS, read, or
	// the redirect cap. Answered 502, REQUEST_END carries the detail.
	ErrUpstream = errors.New("upstream request failed")

	// ErrRule marks a matched rule whose response could not be synthesized.
	// Answered 500, REQUEST_END carries the error text.
	ErrRule = errors.New("rule synthesis failed")
)

// NoClientBody is written verbatim, with status 200, when the impersonated
// cookie carries no client id. Such callers are not onboarded: no rules can
// exist for them and no observer is watching, so the exchange is ignored
// without events.
const NoClientBody = "no clientID, ignored"
