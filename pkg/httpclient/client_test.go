package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/sift/pkg/useragent"
)

func TestClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Get(context.Background(), ts.URL); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClient_Redirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1":
			http.Redirect(w, r, "/2", http.StatusFound)
		case "/2":
			http.Redirect(w, r, "/3", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	client, err := New(Config{MaxRedirects: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Get(context.Background(), ts.URL+"/1"); err == nil {
		t.Fatal("expected redirect limit error")
	}

	noRedir, _ := New(Config{MaxRedirects: -1})
	resp, err := noRedir.Get(context.Background(), ts.URL+"/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected 302 StatusFound, got %d", resp.StatusCode)
	}
}

func TestClient_Cookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "sift", Value: "test"})
			return
		}
		if c, err := r.Cookie("sift"); err != nil || c.Value != "test" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer ts.Close()

	client, err := New(Config{UseCookieJar: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp1, err := client.Get(context.Background(), ts.URL+"/set")
	if err != nil {
		t.Fatalf("unexpected error on /set: %v", err)
	}
	resp1.Body.Close()

	resp2, err := client.Get(context.Background(), ts.URL+"/check")
	if err != nil {
		t.Fatalf("unexpected error on /check: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected 200 OK from /check, got %d", resp2.StatusCode)
	}
}

func TestClient_UserAgent(t *testing.T) {
	var got []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.UserAgent())
	}))
	defer ts.Close()

	client, _ := New(Config{UserAgents: useragent.NewPool("first", "second")})
	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), ts.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	want := []string{"first", "second", "explicit"}
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: expected UA %q, got %q", i, want[i], got[i])
		}
	}
}

func TestClient_DefaultUserAgent(t *testing.T) {
	var ua string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
	}))
	defer ts.Close()

	client, _ := New(Config{})
	resp, err := client.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ua != useragent.Default {
		t.Errorf("expected %q, got %q", useragent.Default, ua)
	}
}

func TestClient_Context(t *testing.T) {
	client, _ := New(Config{})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	//nolint:staticcheck // exercising the nil guard
	if _, err := client.Do(nil, req); !errors.Is(err, ErrNilContext) {
		t.Errorf("expected ErrNilContext, got %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Get(ctx, ts.URL); err == nil {
		t.Fatal("expected cancellation error")
	}
}
