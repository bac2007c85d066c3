package moments

import (
	"sort"
	"strings"

	"github.com/keagan/momentforge/internal/ai"
)

// wordTrim is stripped from both ends of every OCR word.
const wordTrim = ".,!?;:\"'()[]{}\n"

// ObjectNames returns the unique lowercase names of objs, sorted.
func ObjectNames(objs []ai.Object) []string {
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, strings.ToLower(o.Name))
	}
	return uniqueSorted(names)
}

// SearchWords splits recognised text on whitespace, strips surrounding
// punctuation and returns the unique lowercase words, sorted.
func SearchWords(regions []ai.TextRegion) []string {
	var words []string
	for _, r := range regions {
		for _, field := range strings.Fields(r.Text) {
			if w := strings.ToLower(strings.Trim(field, wordTrim)); w != "" {
				words = append(words, w)
			}
		}
	}
	return uniqueSorted(words)
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
