package rewrite

import "net/http"

// CORSEcho wraps a handler with reflecting CORS: whatever Origin the caller
// sends comes back as Access-Control-Allow-Origin, always paired with
// Access-Control-Allow-Credentials true so impersonated cookies survive
// cross-origin calls. Preflight OPTIONS requests are answered here and never
// reach the wrapped handler.
type CORSEcho struct {
	handler http.Handler
}

// NewCORSEcho wraps the handler.
func NewCORSEcho(handler http.Handler) *CORSEcho {
	return &CORSEcho{handler: handler}
}

// ServeHTTP implements http.Handler.
func (c *CORSEcho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			w.Header().Set("Access-Control-Allow-Headers", requested)
		}
		w.Header().Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusOK)
		return
	}

	c.handler.ServeHTTP(w, r)
}
