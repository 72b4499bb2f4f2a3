package textnorm

import "strings"

const (
	zeroBit = '\u200b'
	oneBit  = '\u200c'
)

// SystemMarker is the watermark stamped on ads the system republishes.
const SystemMarker = "X"

// AddWatermark appends mark to text as zero-width characters, eight bits per
// byte, most significant bit first.
func AddWatermark(text, mark string) string {
	var b strings.Builder
	b.WriteString(text)
	for i := 0; i < len(mark); i++ {
		c := mark[i]
		for bit := 7; bit >= 0; bit-- {
			if c&(1<<bit) != 0 {
				b.WriteRune(oneBit)
			} else {
				b.WriteRune(zeroBit)
			}
		}
	}
	return b.String()
}

// ExtractWatermark decodes the zero-width payload of text. A trailing
// partial byte is decoded from the bits present.
func ExtractWatermark(text string) string {
	var bits []byte
	for _, r := range text {
		switch r {
		case zeroBit:
			bits = append(bits, 0)
		case oneBit:
			bits = append(bits, 1)
		}
	}
	if len(bits) == 0 {
		return ""
	}
	var out []byte
	for i := 0; i < len(bits); i += 8 {
		var c byte
		for j := i; j < i+8 && j < len(bits); j++ {
			c = c<<1 | bits[j]
		}
		out = append(out, c)
	}
	return string(out)
}

// IsRepublished reports whether text carries the system's own watermark.
func IsRepublished(text string) bool {
	return ExtractWatermark(text) == SystemMarker
}
