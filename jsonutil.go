// jsonutil.go
package main

import (
	"github.com/tidwall/gjson"
)

// gjsonGetBool reads a boolean field out of a raw JSON body without paying
// for a full unmarshal -- used on the hot path for every request to decide
// streaming framing.
func gjsonGetBool(body []byte, path string) bool {
	r := gjson.GetBytes(body, path)
	return r.Exists() && r.Bool()
}

// gjsonGetString reads a string field out of a raw JSON body.
func gjsonGetString(body []byte, path string) string {
	r := gjson.GetBytes(body, path)
	if !r.Exists() {
		return ""
	}
	return r.String()
}

// jsonToMap decodes a raw JSON document into a generic map for telemetry and
// extract_* strategy methods. Returns nil, not an error, on decode failure --
// telemetry extraction is always best-effort and must never fail the request.
func jsonToMap(body []byte) map[string]interface{} {
	if len(body) == 0 {
		return nil
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil
	}
	v, ok := parsed.Value().(map[string]interface{})
	if !ok {
		return nil
	}
	return v
}
