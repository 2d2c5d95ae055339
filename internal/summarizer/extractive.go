package summarizer

import (
	"sort"
	"strings"
)

// Sentinel is returned by Extractive when the input holds no sentences.
const Sentinel = "Could not generate a short summary."

// DefaultMaxSentences is the length of an extractive summary.
const DefaultMaxSentences = 3

// Extractive builds a summary from the existing sentences of texts. Every
// sentence is scored by the summed corpus frequency of its lowercased words,
// and the maxSentences best are joined in score order. Ties keep input order.
func Extractive(texts []string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}

	var sentences []string
	for _, t := range texts {
		sentences = append(sentences, splitSentences(t)...)
	}
	if len(sentences) == 0 {
		return Sentinel
	}

	lowered := make([][]string, len(sentences))
	freq := make(map[string]int)
	for i, s := range sentences {
		lowered[i] = strings.Fields(strings.ToLower(s))
		for _, w := range lowered[i] {
			freq[w]++
		}
	}

	type scored struct {
		text  string
		score int
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		score := 0
		for _, w := range lowered[i] {
			score += freq[w]
		}
		ranked[i] = scored{text: s, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	n := min(maxSentences, len(ranked))
	top := make([]string, n)
	for i := range top {
		top[i] = ranked[i].text
	}
	return strings.TrimSpace(strings.Join(top, " "))
}

// splitSentences cuts text after '.', '!' or '?' when a space follows. The
// terminator stays with its sentence; blank fragments are dropped.
func splitSentences(text string) []string {
	if len(text) == 0 {
		return nil
	}

	sentences := make([]string, 0, max(1, len(text)/50))
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		end := i + 1
		if end >= len(text) || text[end] != ' ' {
			continue
		}
		next := end
		for next < len(text) && text[next] == ' ' {
			next++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = next
		i = next - 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
