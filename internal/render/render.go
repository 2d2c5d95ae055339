// Package render formats find responses, source lists and subscription
// notifications as Telegram Markdown.
//
// The response layout is persisted in the cache and parsed back by
// ExtractConclusion, which splits at the last ConclusionMarker. The query and
// titles come before it; the marker is removed from the conclusion itself.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// SnippetWords is the number of body words shown per key idea.
const SnippetWords = 30

// ConclusionMarker opens the conclusion section of a response.
const ConclusionMarker = "✅ *Conclusion:*"

// Idea is one extracted article as listed under Key Ideas.
type Idea struct {
	Title   string
	Snippet string
	Link    string
}

// NewIdea builds an Idea, cutting body down to SnippetWords words.
func NewIdea(title, body, link string) Idea {
	return Idea{Title: title, Snippet: Snippet(body, SnippetWords), Link: link}
}

// Response is everything shown for a successful find.
type Response struct {
	Query      string
	Ideas      []Idea
	Conclusion string
}

// Notification lists fresh links for a subscription.
type Notification struct {
	Header string
	Query  string
	Links  []string
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var (
	responseTmpl = template.Must(template.New("response").Parse(
		"🔎 *Query:* {{.Query}}\n\n" +
			"🔍 *Key Ideas:*\n" +
			"{{range $i, $idea := .Ideas}}{{if $i}}\n\n{{end}}" +
			"- *{{$idea.Title}}*:\n{{$idea.Snippet}}... [Read]({{$idea.Link}}){{end}}\n\n" +
			ConclusionMarker + "\n{{.Conclusion}}"))

	sourcesTmpl = template.Must(template.New("sources").Funcs(funcs).Parse(
		"📄 *Sources:*{{range $i, $l := .}}\n{{inc $i}}. {{$l}}{{end}}"))

	notificationTmpl = template.Must(template.New("notification").Funcs(funcs).Parse(
		"🔔 *{{.Header}}* {{.Query}}{{range $i, $l := .Links}}\n{{inc $i}}. {{$l}}{{end}}"))
)

// Snippet returns the first n whitespace-separated words of text joined by
// single spaces.
func Snippet(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// WriteResponse renders r to w.
func WriteResponse(w io.Writer, r Response) error {
	r.Conclusion = strings.ReplaceAll(r.Conclusion, ConclusionMarker, "")
	if err := responseTmpl.Execute(w, r); err != nil {
		return fmt.Errorf("render: response: %w", err)
	}
	return nil
}

// WriteSources renders a numbered link list to w.
func WriteSources(w io.Writer, links []string) error {
	if err := sourcesTmpl.Execute(w, links); err != nil {
		return fmt.Errorf("render: sources: %w", err)
	}
	return nil
}

// WriteNotification renders n to w.
func WriteNotification(w io.Writer, n Notification) error {
	if err := notificationTmpl.Execute(w, n); err != nil {
		return fmt.Errorf("render: notification: %w", err)
	}
	return nil
}

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("render: json: %w", err)
	}
	return nil
}

// ResponseText is WriteResponse into a string.
func ResponseText(r Response) (string, error) {
	return toString(func(w io.Writer) error { return WriteResponse(w, r) })
}

// SourcesText is WriteSources into a string.
func SourcesText(links []string) (string, error) {
	return toString(func(w io.Writer) error { return WriteSources(w, links) })
}

// NotificationText is WriteNotification into a string.
func NotificationText(n Notification) (string, error) {
	return toString(func(w io.Writer) error { return WriteNotification(w, n) })
}

// ExtractConclusion returns the trimmed text after the last ConclusionMarker.
// ok is false when the marker is absent.
func ExtractConclusion(response string) (string, bool) {
	i := strings.LastIndex(response, ConclusionMarker)
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(response[i+len(ConclusionMarker):]), true
}

// Copied wraps a conclusion for the copy action.
func Copied(prefix, conclusion string) string {
	return prefix + "\n\n```" + conclusion + "```"
}

func toString(write func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
