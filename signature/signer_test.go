package signature_test

import (
	"testing"

	"github.com/hookline/dispatch/signature"
)

func TestSignKnownVector(t *testing.T) {
	// Independently computed: HMAC-SHA256("secret-123", `{"a":1,"b":2}`).
	body := []byte(`{"a":1,"b":2}`)
	want := "46608327477cd584930f30700a43f47c50a26111eab739a0bcb3be26ff47b742"

	got := signature.Sign(body, "secret-123")
	if got != want {
		t.Fatalf("Sign() = %q, want %q", got, want)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"x":1}`)
	if signature.Sign(body, "secret-123") != signature.Sign(body, "secret-123") {
		t.Fatal("same body and secret must produce the same signature")
	}
}

func TestSignDependsOnSecret(t *testing.T) {
	body := []byte(`{"x":1}`)
	if signature.Sign(body, "secret-123") == signature.Sign(body, "secret-456") {
		t.Fatal("different secrets must produce different signatures")
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"a":1,"b":2}`)
	sig := signature.Sign(body, "secret-123")

	if !signature.Verify(body, "secret-123", sig) {
		t.Fatal("Verify rejected a valid signature")
	}
	if signature.Verify(body, "secret-123", sig+"00") {
		t.Fatal("Verify accepted a tampered signature")
	}
	if signature.Verify([]byte(`{"a":1,"b":3}`), "secret-123", sig) {
		t.Fatal("Verify accepted a tampered body")
	}
}

func TestGenerateSecret(t *testing.T) {
	a := signature.GenerateSecret()
	b := signature.GenerateSecret()

	if len(a) != 70 {
		t.Fatalf("secret length = %d, want 70", len(a))
	}
	if a[:6] != "whsec_" {
		t.Fatalf("secret prefix = %q, want whsec_", a[:6])
	}
	if a == b {
		t.Fatal("two generated secrets must differ")
	}
}
