// Package keycode generates and recognizes tier-tagged key codes.
//
// Codes are groups of four characters from [A-Z0-9] joined by " - " behind a
// tier prefix. Longer-lived tiers append a base-36 timestamp fragment (and the
// lifetime tier a random base-36 tail) so that codes minted without a
// uniqueness check against the store are unlikely to collide.
package keycode

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/prismkeys/prism/internal/model"
)

// Separator joins the prefix, groups and suffix of a code.
const Separator = " - "

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// shape describes the layout of one tier's codes.
type shape struct {
	prefix     string
	groups     int
	stampLen   int // trailing base-36 timestamp characters, 0 for none
	noiseLen   int // random base-36 characters after the stamp
	transferOK bool
}

var shapes = map[model.Tier]shape{
	model.TierShort:    {prefix: "PrismKey", groups: 4},
	model.TierMonth:    {prefix: "PrismVIP", groups: 5, stampLen: 3, transferOK: true},
	model.TierYear:     {prefix: "PrismYEAR", groups: 6, stampLen: 4, transferOK: true},
	model.TierLifetime: {prefix: "PrismLIFE", groups: 7, stampLen: 4, noiseLen: 3, transferOK: true},
}

// Prefix returns the literal prefix used for tier.
func Prefix(tier model.Tier) string {
	return shapes[tier].prefix
}

// Generator mints codes. The zero value is not usable; use New or Default.
type Generator struct {
	entropy io.Reader
	now     func() time.Time
}

// New returns a Generator reading randomness from entropy and the current
// time from now. Nil arguments fall back to crypto/rand and time.Now.
func New(entropy io.Reader, now func() time.Time) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Default is the process-wide generator backed by crypto/rand.
var Default = New(nil, nil)

// Generate returns a fresh code for tier using the default generator.
func Generate(tier model.Tier) (string, error) {
	return Default.Generate(tier)
}

// Generate returns a fresh code for tier.
func (g *Generator) Generate(tier model.Tier) (string, error) {
	sh, ok := shapes[tier]
	if !ok {
		return "", fmt.Errorf("keycode: unknown tier %q", tier)
	}

	parts := make([]string, 0, sh.groups+2)
	parts = append(parts, sh.prefix)
	for i := 0; i < sh.groups; i++ {
		group, err := g.randomChars(4)
		if err != nil {
			return "", err
		}
		parts = append(parts, group)
	}

	if sh.stampLen > 0 {
		suffix := stamp(g.now(), sh.stampLen)
		if sh.noiseLen > 0 {
			noise, err := g.randomChars(sh.noiseLen)
			if err != nil {
				return "", err
			}
			suffix += noise
		}
		parts = append(parts, suffix)
	}

	return strings.Join(parts, Separator), nil
}

// randomChars draws n characters uniformly from alphabet.
func (g *Generator) randomChars(n int) (string, error) {
	// 252 is the largest multiple of 36 below 256; bytes above it are
	// rejected so every character is equally likely.
	const limit = 252

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(g.entropy, buf); err != nil {
			return "", fmt.Errorf("keycode: read entropy: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// stamp returns the last n characters of the upper-case base-36 encoding of
// t in milliseconds.
func stamp(t time.Time, n int) string {
	s := strings.ToUpper(strconv.FormatInt(t.UnixMilli(), 36))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

// TierFromCode recovers the tier from a code's prefix. Prefixes are matched
// on the full first segment, so "PrismKeyX - ..." is not a short-tier code.
func TierFromCode(code string) (model.Tier, bool) {
	head, _, _ := strings.Cut(code, Separator)
	for tier, sh := range shapes {
		if head == sh.prefix {
			return tier, true
		}
	}
	return "", false
}

// Valid reports whether code has exactly the shape of one of the tiers.
func Valid(code string) bool {
	tier, ok := TierFromCode(code)
	if !ok {
		return false
	}
	sh := shapes[tier]

	parts := strings.Split(code, Separator)
	want := 1 + sh.groups
	if sh.stampLen > 0 {
		want++
	}
	if len(parts) != want {
		return false
	}
	for _, group := range parts[1 : 1+sh.groups] {
		if len(group) != 4 || !inAlphabet(group) {
			return false
		}
	}
	if sh.stampLen > 0 {
		tail := parts[len(parts)-1]
		if len(tail) < 1 || len(tail) > sh.stampLen+sh.noiseLen || !inAlphabet(tail) {
			return false
		}
	}
	return true
}

func inAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
