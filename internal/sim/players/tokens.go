package players

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

const TokenLen = 32

var (
	bearerRe = regexp.MustCompile(`^Bearer ([a-fA-F0-9]{32})$`)
	tokenRe  = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
)

// ValidateToken extracts the token from an Authorization header value of
// the exact form "Bearer <32 hex digits>".
func ValidateToken(header string) (string, bool) {
	m := bearerRe.FindStringSubmatch(header)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func validToken(token string) bool { return tokenRe.MatchString(token) }

type TokenGenerator interface {
	NewToken() string
}

// pairTokens renders two independent 64-bit draws as hex, concatenated and
// left-padded with zeros. Collisions are unlikely, not impossible.
type pairTokens struct {
	a *rand.Rand
	b *rand.Rand
}

// NewTokenGenerator seeds both sources from crypto/rand.
func NewTokenGenerator() TokenGenerator {
	return NewSeededTokenGenerator(entropySeed(), entropySeed())
}

func NewSeededTokenGenerator(seedA, seedB int64) TokenGenerator {
	return &pairTokens{
		a: rand.New(rand.NewSource(seedA)),
		b: rand.New(rand.NewSource(seedB)),
	}
}

func (p *pairTokens) NewToken() string {
	s := fmt.Sprintf("%x%x", p.a.Uint64(), p.b.Uint64())
	if len(s) < TokenLen {
		s = strings.Repeat("0", TokenLen-len(s)) + s
	}
	return s
}

func entropySeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
