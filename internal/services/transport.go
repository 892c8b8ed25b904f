package services

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

type tokenKey struct{}

// WithToken scopes tok to requests made with the returned context, overriding the
// [CredentialSource]. Used to validate a candidate token before it is committed to a session.
func WithToken(ctx context.Context, tok *oauth2.Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

func tokenFromContext(ctx context.Context) (*oauth2.Token, bool) {
	tok, ok := ctx.Value(tokenKey{}).(*oauth2.Token)
	return tok, ok
}

// bearerTransport sets the Authorization header on a clone of every request.
//
// The header is replaced, never appended, so a request carries at most one credential.
type bearerTransport struct {
	base   http.RoundTripper
	source CredentialSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, scoped := tokenFromContext(req.Context())
	if !scoped && t.source != nil {
		tok = t.source.Token()
	}

	r := req.Clone(req.Context())
	if tok != nil && tok.AccessToken != "" {
		tok.SetAuthHeader(r)
	} else {
		r.Header.Del("Authorization")
	}
	return t.base.RoundTrip(r)
}
