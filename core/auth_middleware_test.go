package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func guardTestSetup(t *testing.T) (*fakePrincipalRepo, *TokenCodec, *Authenticator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := newFakePrincipalRepo()
	codec := testCodec()
	return repo, codec, NewAuthenticator(codec, repo)
}

func issueFor(t *testing.T, codec *TokenCodec, p *Principal) string {
	t.Helper()
	token, err := codec.Issue(p.ID, p.Kind, time.Now())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return token
}

func doGuarded(guard gin.HandlerFunc, authorization string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/probe", guard, func(c *gin.Context) {
		if p, ok := PrincipalFrom(c); ok {
			c.JSON(http.StatusOK, gin.H{"kind": p.Kind, "id": p.ID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": "anonymous"})
	})
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireModeratorRejectsEverythingButModerators(t *testing.T) {
	repo, codec, authn := guardTestSetup(t)
	member := repo.add(KindMember, "alice@example.com", "pw12345678", true)
	mod := repo.add(KindModerator, "root@example.com", "pw12345678", true)

	cases := []struct {
		name string
		auth string
		want int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nonsense", http.StatusUnauthorized},
		{"member token", "Bearer " + issueFor(t, codec, member), http.StatusUnauthorized},
		{"moderator token", "Bearer " + issueFor(t, codec, mod), http.StatusOK},
	}
	for _, tc := range cases {
		if w := doGuarded(authn.RequireModerator(), tc.auth); w.Code != tc.want {
			t.Fatalf("%s: status %d, want %d (body %s)", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestRequireMemberDistinguishesBannedFromUnauthenticated(t *testing.T) {
	repo, codec, authn := guardTestSetup(t)
	member := repo.add(KindMember, "alice@example.com", "pw12345678", true)
	banned := repo.add(KindMember, "bob@example.com", "pw12345678", true)
	mod := repo.add(KindModerator, "root@example.com", "pw12345678", true)

	bannedToken := issueFor(t, codec, banned)
	if err := repo.SetActive(context.Background(), KindMember, banned.ID, false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}

	cases := []struct {
		name string
		auth string
		want int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"moderator token", "Bearer " + issueFor(t, codec, mod), http.StatusUnauthorized},
		{"member token", "Bearer " + issueFor(t, codec, member), http.StatusOK},
		// banned after issuance: the otherwise valid token answers 403
		{"banned member token", "Bearer " + bannedToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		if w := doGuarded(authn.RequireMember(), tc.auth); w.Code != tc.want {
			t.Fatalf("%s: status %d, want %d (body %s)", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestOptionalAuthFallsBackToAnonymous(t *testing.T) {
	repo, codec, authn := guardTestSetup(t)
	member := repo.add(KindMember, "alice@example.com", "pw12345678", true)
	banned := repo.add(KindMember, "bob@example.com", "pw12345678", true)
	mod := repo.add(KindModerator, "root@example.com", "pw12345678", true)

	bannedToken := issueFor(t, codec, banned)
	if err := repo.SetActive(context.Background(), KindMember, banned.ID, false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}

	expired := NewTokenCodec([]byte("member-secret-for-tests"), []byte("moderator-secret-for-tests"), time.Hour)
	expiredToken, err := expired.Issue(member.ID, KindMember, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	cases := []struct {
		name     string
		auth     string
		wantKind string
	}{
		{"no token", "", "anonymous"},
		{"garbage token", "Bearer nonsense", "anonymous"},
		{"expired token", "Bearer " + expiredToken, "anonymous"},
		{"banned member token", "Bearer " + bannedToken, "anonymous"},
		{"member token", "Bearer " + issueFor(t, codec, member), "member"},
		{"moderator token", "Bearer " + issueFor(t, codec, mod), "moderator"},
	}
	for _, tc := range cases {
		w := doGuarded(authn.OptionalAuth(), tc.auth)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d, want 200", tc.name, w.Code)
		}
		body := w.Body.String()
		if want := `"kind":"` + tc.wantKind + `"`; !strings.Contains(body, want) {
			t.Fatalf("%s: body %s, want kind %s", tc.name, body, tc.wantKind)
		}
	}
}
