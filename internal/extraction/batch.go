package extraction

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v2"
)

// Item is one numbered text in a batch payload.
type Item struct {
	ID   int    `yaml:"id"`
	Text string `yaml:"text"`
}

const (
	defaultChunkSize = 10
	longChunkSize    = 4
	shortChunkSize   = 14
	longTextRunes    = 2100
	shortTextRunes   = 350
)

// Chunk splits items into batches. Each batch is sized by the longest text
// in the window the previous size would cover: long texts go four at a
// time, short ones fourteen.
func Chunk(items []Item) [][]Item {
	var chunks [][]Item
	size := defaultChunkSize
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		longest := 0
		for _, it := range items[i:end] {
			longest = max(longest, utf8.RuneCountInString(it.Text))
		}
		switch {
		case longest > longTextRunes:
			size = longChunkSize
		case longest < shortTextRunes:
			size = shortChunkSize
		default:
			size = defaultChunkSize
		}
		size = min(size, len(items)-i)
		chunks = append(chunks, items[i:i+size])
	}
	return chunks
}

// Serialize renders a batch as a YAML list, longest text first.
func Serialize(chunk []Item) (string, error) {
	sorted := append([]Item(nil), chunk...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Text) > utf8.RuneCountInString(sorted[j].Text)
	})
	out, err := yaml.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	return string(out), nil
}
