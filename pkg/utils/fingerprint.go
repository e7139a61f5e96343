package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable dedup identifier for an article from its
// source, url and title. The same article fetched twice, or via two feeds,
// hashes to the same value.
func Fingerprint(source, url, title string) string {
	h := md5.Sum([]byte(strings.Join([]string{source, url, title}, "|")))
	return hex.EncodeToString(h[:])
}

// NormalizeEntityText canonicalizes entity surface text for use as a geocode
// cache key: lowercased, inner whitespace collapsed.
func NormalizeEntityText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
