// Package analysis runs duplicate analysis for record pairs: fingerprinting,
// caching, orchestrated provider calls and persistence.
package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// Normalization regexes compiled once at package init.
var (
	reNonAlnum   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

const maxNormalizedBytes = 500

// NormalizeValue folds a record value for comparison: accents removed,
// lowercased, punctuation replaced by spaces and whitespace collapsed.
func NormalizeValue(v string) string {
	folded, _, err := transform.String(accentFolder(), v)
	if err == nil {
		v = folded
	}
	v = strings.ToLower(v)
	v = reNonAlnum.ReplaceAllString(v, " ")
	v = reWhitespace.ReplaceAllString(v, " ")
	v = strings.TrimSpace(v)
	return truncateString(v, maxNormalizedBytes)
}

// accentFolder is not safe for concurrent use, so each call builds its own.
func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// canonical renders a record as sorted key=value lines over normalized
// values. Blank values are dropped so that absent and empty fields agree.
func canonical(r models.Record) string {
	var b strings.Builder
	for _, k := range r.Keys() {
		v := NormalizeValue(r[k])
		if v == "" {
			continue
		}
		b.WriteString(strings.ToLower(strings.TrimSpace(k)))
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}

// PairFingerprint computes a stable SHA-256 fingerprint for an analysis
// request. Swapping record1 and record2 yields the same fingerprint.
func PairFingerprint(req models.AnalysisRequest) string {
	sides := []string{canonical(req.Record1), canonical(req.Record2)}
	sort.Strings(sides)
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x1e%s\x1e%.4f", sides[0], sides[1], req.FuzzyScore)))
	return fmt.Sprintf("%x", hash)
}

// BlockKey groups records likely to be compared: the first four normalized
// name characters followed by the first normalized city character.
func BlockKey(r models.Record) string {
	name := strings.ReplaceAll(NormalizeValue(r["name"]), " ", "")
	city := strings.ReplaceAll(NormalizeValue(r["city"]), " ", "")
	return prefixRunes(name, 4) + prefixRunes(city, 1)
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !isRuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
