package core

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// PrincipalFrom returns the authenticated principal attached by a guard,
// if any.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(c *gin.Context) (string, bool) {
	const prefix = "Bearer "
	value := c.GetHeader("Authorization")
	if !strings.HasPrefix(value, prefix) {
		return "", false
	}
	token := strings.TrimSpace(value[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// Authenticator verifies bearer tokens and reloads principals for each
// request. Reloading is deliberate: tokens cannot be revoked, so a ban or
// deactivation applied after issuance must take effect on the very next
// request.
type Authenticator struct {
	codec      *TokenCodec
	principals PrincipalRepository
}

func NewAuthenticator(codec *TokenCodec, principals PrincipalRepository) *Authenticator {
	return &Authenticator{codec: codec, principals: principals}
}

// resolve verifies token as the given kind and reloads the principal.
// Inactive principals are reported separately so MemberOnly can answer 403.
func (a *Authenticator) resolve(c *gin.Context, token string, kind PrincipalKind) (*Principal, error) {
	claims, err := a.codec.Verify(token, kind)
	if err != nil {
		return nil, ErrInvalidToken
	}
	p, err := a.principals.FindByID(c.Request.Context(), kind, claims.PrincipalID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !p.Active {
		return nil, ErrAccountBanned
	}
	return p, nil
}

// RequireModerator admits only a valid, active moderator. Everything else
// is a uniform 401.
func (a *Authenticator) RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "moderator authentication required")
			c.Abort()
			return
		}
		p, err := a.resolve(c, token, KindModerator)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "moderator authentication required")
			c.Abort()
			return
		}
		c.Set(principalContextKey, p)
		c.Next()
	}
}

// RequireMember admits only a valid, active member. A token that resolves
// to a known but banned member answers 403, distinguishing "blocked" from
// "not authenticated".
func (a *Authenticator) RequireMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			c.Abort()
			return
		}
		p, err := a.resolve(c, token, KindMember)
		if err != nil {
			if err == ErrAccountBanned {
				respondError(c, http.StatusForbidden, "ACCOUNT_BANNED", "account is banned")
			} else {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			}
			c.Abort()
			return
		}
		c.Set(principalContextKey, p)
		c.Next()
	}
}

// OptionalAuth serves mixed-audience routes. With no token the request
// proceeds anonymously. With a token, verification strategies run in
// order (moderator first, then member) and the first success attaches the
// principal. When no strategy succeeds the request still proceeds
// anonymously: on these routes a bad token is not an error, it merely
// fails to authenticate.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	strategies := []PrincipalKind{KindModerator, KindMember}
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			// anonymous: no token presented
			c.Next()
			return
		}
		for _, kind := range strategies {
			if p, err := a.resolve(c, token, kind); err == nil {
				c.Set(principalContextKey, p)
				c.Next()
				return
			}
		}
		// anonymous: token did not verify as either kind
		c.Next()
	}
}
