package checkout

import "strings"

// EncryptedPrefix explicitly tags an encrypted checkout payload.
const EncryptedPrefix = "enc:"

// ItemRef is a parsed checkout target.
type ItemRef struct {
	Value     string // token id, or the payload passed to verify
	Encrypted bool
}

// ParseItemRef classifies raw. The enc: prefix is authoritative; untagged
// values containing ':' or '=' are still treated as encrypted payloads since
// links already in circulation carry no tag.
func ParseItemRef(raw string) ItemRef {
	raw = strings.TrimSpace(raw)
	if p, ok := strings.CutPrefix(raw, EncryptedPrefix); ok {
		return ItemRef{Value: p, Encrypted: true}
	}
	if strings.ContainsAny(raw, ":=") {
		return ItemRef{Value: raw, Encrypted: true}
	}
	return ItemRef{Value: raw}
}
