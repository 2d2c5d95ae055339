package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	for _, p := range []Profile{ProfileGo, ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			tr, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			if p == ProfileGo && tr.DialTLSContext != nil {
				t.Errorf("expected plain transport for %s", p)
			}
			if p != ProfileGo && tr.DialTLSContext == nil {
				t.Errorf("expected custom TLS dialer for %s", p)
			}

			client := &http.Client{Transport: tr}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_VerifiesCertificates(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	tr, err := Transport(ProfileChrome, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := (&http.Client{Transport: tr}).Get(ts.URL); err == nil {
		t.Fatal("expected self-signed certificate to be rejected")
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("netscape"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "netscape"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	cases := map[string]Profile{
		"":         ProfileGo,
		"go":       ProfileGo,
		" Chrome ": ProfileChrome,
		"firefox":  ProfileFirefox,
		"random":   ProfileRandom,
	}
	for in, want := range cases {
		got, err := ParseProfile(in)
		if err != nil {
			t.Errorf("ParseProfile(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProfile(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseProfile("lynx"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
