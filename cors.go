// cors.go
package main

import (
	"net/http"
	"strings"
)

// allowedRequestHeaders is the preflight allow-list: routing and tracking
// headers, the non-secret Bedrock credential parts, provider version
// headers, and the shared secret-header set telemetry obfuscates.
var allowedRequestHeaders = strings.Join(append([]string{
	"content-type", "x-provider",
	"x-project-id", "x-organisation-id", "x-user-id", "x-experiment-id",
	"x-aws-access-key-id", "x-aws-region",
	"anthropic-version", "anthropic-beta",
}, secretHeaders...), ", ")

// addCORSHeaders adds the gateway's fixed CORS policy to every response,
// including errors.
func addCORSHeaders(h http.Header) {
	h.Set("access-control-allow-origin", "*")
	h.Set("access-control-allow-methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("access-control-allow-headers", allowedRequestHeaders)
}
