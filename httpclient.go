// httpclient.go
package main

import "net/http"

// newUpstreamClient builds the shared, pooled HTTP client used for every
// upstream call: no response timeout (streaming responses can run
// indefinitely; the engine enforces its own deadlines via context), HTTP/2
// attempted, compression left to the provider since bodies are relayed
// verbatim.
func newUpstreamClient() *http.Client {
	transport := &http.Transport{
		DisableCompression:    true,
		ResponseHeaderTimeout: 0,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   64,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   0,
	}
}
