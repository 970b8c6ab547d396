package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test_secret"
	body := []byte(`{"external_id":"tr_abc","status":"completed","amount":50000}`)

	if !verifyWebhookSignature(secret, body, sign(secret, body)) {
		t.Error("valid signature rejected")
	}
	if !verifyWebhookSignature(secret, body, "sha256="+sign(secret, body)) {
		t.Error("valid signature with scheme prefix rejected")
	}
	if verifyWebhookSignature(secret, body, sign("wrong_secret", body)) {
		t.Error("signature from wrong secret accepted")
	}
	if verifyWebhookSignature(secret, []byte(`{"external_id":"tr_abc","status":"failed"}`), sign(secret, body)) {
		t.Error("signature over different body accepted")
	}
	if verifyWebhookSignature(secret, body, "") {
		t.Error("empty signature accepted")
	}
	if verifyWebhookSignature("", body, sign("", body)) {
		t.Error("empty secret must reject everything")
	}
}

func TestVerifyWebhookSignature_CaseInsensitiveHex(t *testing.T) {
	secret := "whsec_test_secret"
	body := []byte(`{"external_id":"tr_xyz","status":"failed"}`)

	upper := ""
	for _, c := range sign(secret, body) {
		if c >= 'a' && c <= 'f' {
			upper += string(c - 32)
		} else {
			upper += string(c)
		}
	}
	if !verifyWebhookSignature(secret, body, upper) {
		t.Error("uppercase hex signature rejected")
	}
}
