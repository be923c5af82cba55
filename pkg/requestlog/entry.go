// Package requestlog keeps the recent exchange history: one entry per
// rewrite call that reached a decision, held in a fixed-size in-memory ring.
package requestlog

import "time"

// MaxBodyBytes caps how much request and response body an entry stores.
const MaxBodyBytes = 10 * 1024

// Entry is one completed (or failed) exchange.
type Entry struct {
	// ID is a unique identifier for the exchange.
	ID string `json:"id"`

	// ClientID is the client whose rules governed the exchange.
	ClientID string `json:"clientId"`

	// Timestamp is when the exchange was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Method, Host, Pathname and URL describe the target request.
	Method   string `json:"method"`
	Host     string `json:"host"`
	Pathname string `json:"pathname"`
	URL      string `json:"url"`

	// IsMock reports whether a rule matched.
	IsMock bool `json:"isMock"`

	// RuleIndex is the position of the matched rule, -1 when none matched.
	RuleIndex int `json:"ruleIndex"`

	// Status is the status written to the caller.
	Status int `json:"status"`

	// RequestBody and ResponseBody are truncated to MaxBodyBytes.
	RequestBody  string `json:"requestBody,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`

	// TimecostMs is wall-clock milliseconds from decision to completion.
	TimecostMs int64 `json:"timecost"`

	// Error carries the failure detail for upstream or synthesis errors.
	Error string `json:"error,omitempty"`
}

// Truncate trims a body to the entry cap.
func Truncate(body string) string {
	if len(body) <= MaxBodyBytes {
		return body
	}
	return body[:MaxBodyBytes] + "... (truncated)"
}
