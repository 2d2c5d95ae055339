package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestResponseText(t *testing.T) {
	got, err := ResponseText(Response{
		Query: "asyncio",
		Ideas: []Idea{
			{Title: "One", Snippet: "first body", Link: "https://a/1"},
			{Title: "Two", Snippet: "second body", Link: "https://b/2"},
		},
		Conclusion: "It schedules coroutines.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "🔎 *Query:* asyncio\n\n" +
		"🔍 *Key Ideas:*\n" +
		"- *One*:\nfirst body... [Read](https://a/1)\n\n" +
		"- *Two*:\nsecond body... [Read](https://b/2)\n\n" +
		"✅ *Conclusion:*\nIt schedules coroutines."
	if got != want {
		t.Errorf("unexpected response:\n%q\nwant:\n%q", got, want)
	}
}

func TestNewIdea_Snippet(t *testing.T) {
	body := strings.Repeat("word ", 40)
	idea := NewIdea("T", body, "https://x")
	if n := len(strings.Fields(idea.Snippet)); n != SnippetWords {
		t.Errorf("expected %d words, got %d", SnippetWords, n)
	}

	if got := Snippet("  a\tb \n c ", 30); got != "a b c" {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
}

func TestExtractConclusion(t *testing.T) {
	resp, _ := ResponseText(Response{Query: "q", Ideas: []Idea{{Title: "t", Snippet: "s", Link: "l"}}, Conclusion: "  final words \n"})
	got, ok := ExtractConclusion(resp)
	if !ok || got != "final words" {
		t.Errorf("expected 'final words', got %q ok=%v", got, ok)
	}

	if _, ok := ExtractConclusion("no marker here"); ok {
		t.Error("expected ok=false without marker")
	}
}

func TestExtractConclusion_MarkerInQuery(t *testing.T) {
	resp, _ := ResponseText(Response{
		Query:      ConclusionMarker + " x",
		Ideas:      []Idea{{Title: "also " + ConclusionMarker, Snippet: "s", Link: "l"}},
		Conclusion: "final words",
	})
	got, ok := ExtractConclusion(resp)
	if !ok || got != "final words" {
		t.Errorf("expected only the conclusion, got %q ok=%v", got, ok)
	}

	resp, _ = ResponseText(Response{Query: "q", Conclusion: "a " + ConclusionMarker + " b"})
	if got, _ := ExtractConclusion(resp); got != "a  b" {
		t.Errorf("expected marker removed from conclusion, got %q", got)
	}
}

func TestSourcesText(t *testing.T) {
	got, err := SourcesText([]string{"https://a", "https://b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "📄 *Sources:*\n1. https://a\n2. https://b"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNotificationText(t *testing.T) {
	got, _ := NotificationText(Notification{Header: "New results for", Query: "go", Links: []string{"https://a"}})
	if want := "🔔 *New results for* go\n1. https://a"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCopied(t *testing.T) {
	if got := Copied("📋 Copied:", "x"); got != "📋 Copied:\n\n```x```" {
		t.Errorf("unexpected %q", got)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]int{"links": 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]int
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out["links"] != 3 {
		t.Errorf("unexpected output %s", buf.String())
	}
}
