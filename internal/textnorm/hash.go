package textnorm

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Hashes are the content fingerprints of one header-stripped message.
type Hashes struct {
	Text    string // lowercased and trimmed
	Raw     string
	Trimmed string
	NoPhone string
}

// Variants lists the memo lookup keys, most tolerant first.
func (h Hashes) Variants() []string {
	return []string{h.Text, h.Raw, h.Trimmed}
}

func MD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashMessage fingerprints the raw message text after removing the forward
// header.
func HashMessage(raw string) Hashes {
	stripped := StripHeader(raw)
	noPhone, _ := RemovePhones(stripped)
	return Hashes{
		Text:    MD5(strings.ToLower(strings.TrimSpace(stripped))),
		Raw:     MD5(stripped),
		Trimmed: MD5(strings.TrimSpace(stripped)),
		NoPhone: MD5(noPhone),
	}
}
