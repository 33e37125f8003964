package webhooks

import (
	"strings"
	"testing"
)

func TestSign(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// Calculated using: echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := Sign(secret, payload)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"eventType":"attendance","subjectId":"A1","eventId":"e1"}`)
	good := Sign("s3cret", body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid", "s3cret", body, good, true},
		{"github prefix", "s3cret", body, "sha256=" + good, true},
		{"different secret", "other", body, good, false},
		{"tampered body", "s3cret", []byte(`{"eventType":"attendance","subjectId":"A2","eventId":"e1"}`), good, false},
		{"empty secret", "", body, Sign("", body), false},
		{"empty body", "s3cret", nil, Sign("s3cret", nil), false},
		{"empty signature", "s3cret", body, "", false},
		{"not hex", "s3cret", body, "zz" + good[2:], false},
		{"short", "s3cret", body, "deadbeef", false},
		{"uppercase still decodes", "s3cret", body, strings.ToUpper(good), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify_RoundTripManyInputs(t *testing.T) {
	secrets := []string{"a", "s3cret", "a much longer secret value with symbols !@#"}
	bodies := [][]byte{[]byte("x"), []byte("{}"), []byte(strings.Repeat("payload", 500))}

	for _, secret := range secrets {
		for _, body := range bodies {
			if !Verify(secret, body, Sign(secret, body)) {
				t.Fatalf("round trip failed for secret %q body len %d", secret, len(body))
			}
			if Verify(secret+"x", body, Sign(secret, body)) {
				t.Fatalf("verify accepted signature from a different secret %q", secret)
			}
		}
	}
}
