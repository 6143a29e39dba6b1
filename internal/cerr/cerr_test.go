package cerr

import "testing"

func TestHTTPStatusGroups(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code Code
		want int
	}{
		{Unspecified, 500},
		{BadAPIKey, 401},
		{AuthTokenExpired, 401},
		{NotHighEnoughPermissions, 403},
		{ProUserOnly, 403},
		{UserNotFound, 404},
		{GitgraphNotFound, 404},
		{FreeUserRateLimitExceeded, 429},
		{APIKeyRateLimit, 429},
		{BadModelName, 400},
		{ClaudeImageTooLarge, 400},
		{MaxTokens, 500},
		{RepositoryServiceRepositoryIsNotInitialized, 500},
	}
	for _, tt := range cases {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("Code(%d).HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestUnknownOrdinalDefaultsTo500(t *testing.T) {
	t.Parallel()
	if got := Code(9999).HTTPStatus(); got != 500 {
		t.Errorf("unknown ordinal HTTPStatus() = %d, want 500", got)
	}
}

func TestFromUpstreamEnvelopes(t *testing.T) {
	t.Parallel()
	e := FromUpstream(int32(AuthTokenExpired), true, "token expired", "ERROR_AUTH_TOKEN_EXPIRED")
	if e.Status != 401 {
		t.Fatalf("Status = %d, want 401", e.Status)
	}
	oa := e.ToOpenAI()
	if oa.ErrorBody.Code != "ERROR_AUTH_TOKEN_EXPIRED" || oa.ErrorBody.Type != "error" {
		t.Errorf("OpenAI envelope mismatch: %+v", oa)
	}
	an := e.ToAnthropic()
	if an.Type != "error" || an.Error.Type != "ERROR_AUTH_TOKEN_EXPIRED" {
		t.Errorf("Anthropic envelope mismatch: %+v", an)
	}
}

// TestFromUpstreamPrefersEnvelopeCode reproduces spec.md §8 scenario 4: the
// decoded ordinal is AuthTokenExpired, but the enclosing ChatError
// envelope's own code is "ERROR_UNAUTHORIZED" — the exposed code must be
// the envelope's, not a rendering of the ordinal.
func TestFromUpstreamPrefersEnvelopeCode(t *testing.T) {
	t.Parallel()
	e := FromUpstream(int32(AuthTokenExpired), false, "unauthorized", "ERROR_UNAUTHORIZED")
	if e.Status != 401 {
		t.Fatalf("Status = %d, want 401 (from the decoded ordinal)", e.Status)
	}
	if e.WireCode != "ERROR_UNAUTHORIZED" {
		t.Errorf("WireCode = %q, want envelope's ERROR_UNAUTHORIZED, not the ordinal's own rendering", e.WireCode)
	}
}

// TestFromUpstreamFallsBackWhenEnvelopeCodeMissing covers the defensive
// path: an envelope with no top-level code still needs a WireCode.
func TestFromUpstreamFallsBackWhenEnvelopeCodeMissing(t *testing.T) {
	t.Parallel()
	e := FromUpstream(int32(BadModelName), false, "bad model", "")
	if e.WireCode != "ERROR_BAD_MODEL_NAME" {
		t.Errorf("WireCode = %q, want ERROR_BAD_MODEL_NAME fallback", e.WireCode)
	}
}
