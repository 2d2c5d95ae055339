// Package bypass recognises anti-bot challenge pages so a blocked search is
// reported as such instead of as "no results".
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the subset of an HTTP exchange the detectors inspect.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Signature describes how one vendor's block page looks.
type Signature struct {
	Vendor   string
	Statuses []int
	// ServerContains matches a lowercase substring of the Server header.
	ServerContains string
	// Headers match if any of them is present.
	Headers []string
	// Markers match if any of them appears in the body.
	Markers [][]byte
	// AllMarkers must all appear in the body. Ignored when empty.
	AllMarkers [][]byte
}

// DefaultSignatures covers the bot managers most often seen in front of the
// search sites.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Vendor:         "Cloudflare",
			Statuses:       []int{http.StatusForbidden, http.StatusServiceUnavailable},
			ServerContains: "cloudflare",
			Markers: [][]byte{
				[]byte("cf-browser-verification"),
				[]byte("cf-turnstile"),
				[]byte("Attention Required! | Cloudflare"),
			},
		},
		{
			Vendor:         "Akamai",
			Statuses:       []int{http.StatusForbidden},
			ServerContains: "akamai",
			AllMarkers:     [][]byte{[]byte("Reference #"), []byte("Access Denied")},
		},
		{
			Vendor:         "DataDome",
			Statuses:       []int{http.StatusForbidden},
			ServerContains: "datadome",
			Headers:        []string{"X-DataDome", "X-DataDome-Response"},
			Markers:        [][]byte{[]byte("geo.captcha-delivery.com")},
		},
		{
			Vendor:   "PerimeterX",
			Statuses: []int{http.StatusForbidden},
			Headers:  []string{"X-Px-Captcha"},
			Markers: [][]byte{
				[]byte("client.perimeterx.net"),
				[]byte("px-captcha"),
				[]byte("_pxBlock"),
			},
		},
		{
			Vendor:   "RateLimit",
			Statuses: []int{http.StatusTooManyRequests},
			Headers:  []string{"Retry-After"},
		},
	}
}

// Match reports whether resp looks like sig's block page.
func (sig Signature) Match(resp *Response) bool {
	if resp == nil || !containsStatus(sig.Statuses, resp.StatusCode) {
		return false
	}
	if sig.ServerContains != "" &&
		strings.Contains(strings.ToLower(resp.Header.Get("Server")), sig.ServerContains) {
		return true
	}
	for _, h := range sig.Headers {
		if resp.Header.Get(h) != "" {
			return true
		}
	}
	for _, m := range sig.Markers {
		if bytes.Contains(resp.Body, m) {
			return true
		}
	}
	if len(sig.AllMarkers) > 0 {
		for _, m := range sig.AllMarkers {
			if !bytes.Contains(resp.Body, m) {
				return false
			}
		}
		return true
	}
	return false
}

// Detect returns the vendor of the first matching signature, or "" when the
// response looks like a normal page.
func Detect(resp *Response, sigs []Signature) string {
	for _, sig := range sigs {
		if sig.Match(resp) {
			return sig.Vendor
		}
	}
	return ""
}

func containsStatus(statuses []int, code int) bool {
	for _, s := range statuses {
		if s == code {
			return true
		}
	}
	return false
}
