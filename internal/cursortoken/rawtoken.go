package cursortoken

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "https://authentication.cursor.sh"
	audience = "https://cursor.com"
	scope    = "openid profile email offline_access"
	// headerB64 is the fixed base64url-no-pad encoding of
	// {"alg":"HS256","typ":"JWT"}; Cursor tokens never vary this segment.
	headerB64 = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"
)

var randomnessPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}$`)

// RawToken is the decoded body of a Cursor JWT credential.
type RawToken struct {
	Provider   string
	UserID     [16]byte
	Randomness [8]byte
	Start      time.Time
	End        time.Time
	Signature  [32]byte
	IsSession  bool
	raw        string // cached printable form (the original JWT string)
}

// Key returns the TokenKey identity for this RawToken.
func (t RawToken) Key() TokenKey {
	return TokenKey{UserID: t.UserID, Randomness: t.Randomness}
}

// Live reports whether the token has not yet expired.
func (t RawToken) Live(now time.Time) bool { return t.End.After(now) }

// String returns the original JWT string this RawToken was parsed from.
func (t RawToken) String() string { return t.raw }

// Equal reports byte-equality across every field (the equality law
// required by §8's round-trip property).
func (t RawToken) Equal(o RawToken) bool {
	return t.Provider == o.Provider && t.UserID == o.UserID && t.Randomness == o.Randomness &&
		t.Start.Equal(o.Start) && t.End.Equal(o.End) && t.Signature == o.Signature && t.IsSession == o.IsSession
}

type tokenClaims struct {
	Sub        string `json:"sub"`
	Time       string `json:"time"`
	Randomness string `json:"randomness"`
	Exp        int64  `json:"exp"`
	Iss        string `json:"iss"`
	Scope      string `json:"scope"`
	Aud        string `json:"aud"`
	IsSession  bool   `json:"isSession,omitempty"`
}

func (c *tokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}
func (c *tokenClaims) GetIssuedAt() (*jwt.NumericDate, error)  { return nil, nil }
func (c *tokenClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c *tokenClaims) GetIssuer() (string, error)              { return c.Iss, nil }
func (c *tokenClaims) GetSubject() (string, error)             { return c.Sub, nil }
func (c *tokenClaims) GetAudience() (jwt.ClaimStrings, error)  { return jwt.ClaimStrings{c.Aud}, nil }

// Delimiter is the configurable character (TOKEN_DELIMITER) separating a
// JWT from a trailing checksum in a "<jwt><Delimiter><checksum>" credential.
// Callers replace this with the configured value at startup; it defaults to
// a comma, matching Cursor's own default.
var Delimiter byte = ','

// ExtractCredential strips a trailing "<Delimiter><checksum>" suffix, then
// any "<prefix>:<jwt>" or "<prefix>%3A<jwt>" delimiter from what remains,
// returning only the JWT itself. Ported from the source's extract_token
// (original_source/src/common/utils.rs): a raw credential handed to the
// gateway may carry both a cookie-style prefix and a trailing checksum
// (e.g. a direct-token credential reusing the import format's
// "<jwt>,<checksum>" shape), and only the JWT segment between them is
// actually parsed as a token.
func ExtractCredential(s string) string {
	tokenPart := s
	if pos := strings.LastIndexByte(s, Delimiter); pos >= 0 {
		tokenPart = s[:pos]
	}

	colon := strings.LastIndexByte(tokenPart, ':')
	enc := strings.LastIndex(tokenPart, "%3A")
	switch {
	case colon < 0 && enc < 0:
		return tokenPart
	case enc < 0 || colon > enc:
		return tokenPart[colon+1:]
	default:
		return tokenPart[enc+3:]
	}
}

// AllowedProviders is the configurable set of identity providers Cursor
// subjects may carry. Callers should replace this with the configured set
// at startup; it defaults to Cursor's known providers.
var AllowedProviders = map[string]bool{
	"auth0":          true,
	"google-oauth2":  true,
	"github":         true,
	"ws-github":      true,
	"ws-google":      true,
}

// ParseRawToken validates and decodes a Cursor JWT credential per §4.1.
// now is injected so parsing is deterministic in tests.
func ParseRawToken(credential string, now time.Time) (RawToken, error) {
	s := ExtractCredential(credential)

	segs := strings.Split(s, ".")
	if len(segs) != 3 {
		return RawToken{}, fmt.Errorf("cursortoken: expected 3 JWT segments, got %d", len(segs))
	}
	if segs[0] != headerB64 {
		return RawToken{}, fmt.Errorf("cursortoken: unexpected JWT header segment")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	claims := &tokenClaims{}
	if _, _, err := parser.ParseUnverified(s, claims); err != nil {
		return RawToken{}, fmt.Errorf("cursortoken: parse claims: %w", err)
	}

	if claims.Iss != issuer {
		return RawToken{}, fmt.Errorf("cursortoken: bad issuer %q", claims.Iss)
	}
	if claims.Aud != audience {
		return RawToken{}, fmt.Errorf("cursortoken: bad audience %q", claims.Aud)
	}
	if claims.Scope != scope {
		return RawToken{}, fmt.Errorf("cursortoken: bad scope %q", claims.Scope)
	}

	startSecs, err := strconv.ParseInt(claims.Time, 10, 64)
	if err != nil {
		return RawToken{}, fmt.Errorf("cursortoken: bad time claim: %w", err)
	}
	start := time.Unix(startSecs, 0)
	if start.After(now) {
		return RawToken{}, fmt.Errorf("cursortoken: time claim is in the future")
	}
	end := time.Unix(claims.Exp, 0)
	if !end.After(now) {
		return RawToken{}, fmt.Errorf("cursortoken: token expired")
	}

	if !randomnessPattern.MatchString(claims.Randomness) {
		return RawToken{}, fmt.Errorf("cursortoken: bad randomness format %q", claims.Randomness)
	}
	randHex := strings.ReplaceAll(claims.Randomness, "-", "")
	randBytes, err := hex.DecodeString(randHex)
	if err != nil || len(randBytes) != 8 {
		return RawToken{}, fmt.Errorf("cursortoken: bad randomness hex")
	}

	provider, idPart, ok := strings.Cut(claims.Sub, "|")
	if !ok {
		return RawToken{}, fmt.Errorf("cursortoken: bad subject %q", claims.Sub)
	}
	if !AllowedProviders[provider] {
		return RawToken{}, fmt.Errorf("cursortoken: disallowed provider %q", provider)
	}
	userID, err := parseUserID(idPart)
	if err != nil {
		return RawToken{}, err
	}

	sigBytes, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil || len(sigBytes) != 32 {
		return RawToken{}, fmt.Errorf("cursortoken: bad signature segment")
	}

	var rt RawToken
	rt.Provider = provider
	rt.UserID = userID
	copy(rt.Randomness[:], randBytes)
	rt.Start = start
	rt.End = end
	copy(rt.Signature[:], sigBytes)
	rt.IsSession = claims.IsSession
	rt.raw = s
	return rt, nil
}

// parseUserID accepts a 16-byte value encoded either as 32 hex characters
// or as an unsigned decimal integer.
func parseUserID(s string) ([16]byte, error) {
	var out [16]byte
	if len(s) == 32 {
		if b, err := hex.DecodeString(s); err == nil {
			copy(out[:], b)
			return out, nil
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return out, fmt.Errorf("cursortoken: bad subject id %q", s)
	}
	putBigEndian(out[:], n)
	return out, nil
}
