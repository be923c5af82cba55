// Package rewrite implements the interception endpoint: it parses tunneled
// requests, matches them against the calling client's rules, and answers with
// a synthesized mock response or the relayed upstream response. Every exchange
// that reaches a decision is published as a REQUEST_START / REQUEST_END event
// pair and recorded in the exchange history.
package rewrite
