// obfuscate.go
package main

import (
	"net/http"
	"strings"
)

// secretHeaders are the credential-bearing request headers across the
// gateway's providers: Bearer auth for the OpenAI-dialect providers,
// Anthropic's x-api-key, and the per-request AWS secret material for
// Bedrock. cors.go allows these same headers on preflight; telemetry runs
// them through ObfuscateHeaders before a record is built.
var secretHeaders = []string{
	"authorization",
	"x-api-key",
	"x-aws-secret-access-key",
	"x-aws-session-token",
}

func isSecretHeader(name string) bool {
	name = strings.ToLower(name)
	for _, h := range secretHeaders {
		if name == h {
			return true
		}
	}
	return false
}

// keyPrefixes maps known API-key prefixes to their display form, longest
// match first so sk-ant-api03- collapses to the base sk-ant-.
var keyPrefixes = [][2]string{
	{"sk-ant-api03-", "sk-ant-"},
	{"sk-ant-", "sk-ant-"},
	{"sk-proj-", "sk-proj-"},
	{"sk-", "sk-"},
}

// ObfuscateAPIKey reduces a credential to its recognizable prefix plus, for
// keys long enough that it reveals nothing useful, the last 4 characters.
func ObfuscateAPIKey(key string) string {
	if key == "" {
		return ""
	}

	prefix := ""
	for _, p := range keyPrefixes {
		if strings.HasPrefix(key, p[0]) {
			prefix = p[1]
			break
		}
	}
	if prefix == "" {
		// Unknown scheme: keep up to the first dash as the display prefix.
		if idx := strings.Index(key, "-"); idx > 0 {
			prefix = key[:idx+1]
		}
	}

	suffix := ""
	if len(key) > len(prefix)+8 {
		suffix = key[len(key)-4:]
	}
	return prefix + "..." + suffix
}

// ObfuscateHeaders returns a copy of headers with every secret header's
// value obfuscated; all other headers pass through unchanged.
func ObfuscateHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for key, values := range headers {
		secret := isSecretHeader(key)
		for _, v := range values {
			if secret {
				v = obfuscateHeaderValue(v)
			}
			out[key] = append(out[key], v)
		}
	}
	return out
}

func obfuscateHeaderValue(value string) string {
	if token, ok := strings.CutPrefix(value, "Bearer "); ok {
		return "Bearer " + ObfuscateAPIKey(token)
	}
	return ObfuscateAPIKey(value)
}
