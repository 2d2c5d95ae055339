package bypass

import (
	"net/http"
	"testing"
)

func TestDetect(t *testing.T) {
	sigs := DefaultSignatures()

	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			name: "normal page",
			resp: &Response{StatusCode: 200, Header: http.Header{"Server": {"cloudflare"}}, Body: []byte("cf-turnstile")},
			want: "",
		},
		{
			name: "cloudflare server header",
			resp: &Response{StatusCode: 403, Header: http.Header{"Server": {"cloudflare"}}},
			want: "Cloudflare",
		},
		{
			name: "cloudflare body",
			resp: &Response{StatusCode: 503, Header: http.Header{}, Body: []byte("<html>... cf-turnstile ...</html>")},
			want: "Cloudflare",
		},
		{
			name: "akamai header",
			resp: &Response{StatusCode: 403, Header: http.Header{"Server": {"AkamaiGHost"}}},
			want: "Akamai",
		},
		{
			name: "akamai body needs both markers",
			resp: &Response{StatusCode: 403, Header: http.Header{}, Body: []byte("Access Denied... Reference #123.456")},
			want: "Akamai",
		},
		{
			name: "akamai partial body",
			resp: &Response{StatusCode: 403, Header: http.Header{}, Body: []byte("Reference #123")},
			want: "",
		},
		{
			name: "datadome header",
			resp: &Response{StatusCode: 403, Header: http.Header{"X-Datadome": {"protected"}}},
			want: "DataDome",
		},
		{
			name: "perimeterx body",
			resp: &Response{StatusCode: 403, Header: http.Header{}, Body: []byte(`<div id="px-captcha"></div>`)},
			want: "PerimeterX",
		},
		{
			name: "rate limited",
			resp: &Response{StatusCode: 429, Header: http.Header{"Retry-After": {"30"}}},
			want: "RateLimit",
		},
		{
			name: "nil response",
			resp: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.resp, sigs); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignature_StatusGate(t *testing.T) {
	sig := Signature{Vendor: "X", Statuses: []int{403}, Markers: [][]byte{[]byte("blocked")}}

	if sig.Match(&Response{StatusCode: 200, Body: []byte("blocked")}) {
		t.Error("expected status gate to reject 200")
	}
	if !sig.Match(&Response{StatusCode: 403, Body: []byte("you are blocked")}) {
		t.Error("expected match on 403 with marker")
	}
}
