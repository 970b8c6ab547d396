package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newJWKSServer(t *testing.T, kid string, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x00, 0x01})
	body := fmt.Sprintf(`{"keys":[{"kid":%q,"kty":"RSA","use":"sig","n":%q,"e":%q}]}`, kid, n, e)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func signedToken(t *testing.T, kid string, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware_AudienceAndIssuerEnforcement(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	kid := "aud-iss-test-key"
	jwks := newJWKSServer(t, kid, key)

	auth := AuthConfig{
		JWKSURL:  jwks.URL,
		Audience: "earnings-api",
		Issuer:   "https://id.example.com/",
	}

	cases := []struct {
		name       string
		claims     jwt.MapClaims
		wantStatus int
	}{
		{
			name: "matching audience and issuer pass",
			claims: jwt.MapClaims{
				"sub": "creator-1",
				"aud": "earnings-api",
				"iss": "https://id.example.com/",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "wrong audience rejected",
			claims: jwt.MapClaims{
				"sub": "creator-1",
				"aud": "some-other-api",
				"iss": "https://id.example.com/",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong issuer rejected",
			claims: jwt.MapClaims{
				"sub": "creator-1",
				"aud": "earnings-api",
				"iss": "https://rogue.example.com/",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject, ok := GetAuthSubject(r.Context())
				if !ok || subject != "creator-1" {
					t.Errorf("subject not propagated, got %q", subject)
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/balance", nil)
			req.Header.Set("Authorization", "Bearer "+signedToken(t, kid, key, tc.claims))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
