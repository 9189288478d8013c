package security

import "testing"

func TestRespondVerifyRoundTrip(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}

	resp := Respond("s3cret", nonce)
	if !Verify("s3cret", nonce, resp) {
		t.Fatal("expected verify to succeed with matching password")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	nonce, _ := NewNonce()
	resp := Respond("s3cret", nonce)
	if Verify("wrong", nonce, resp) {
		t.Fatal("expected verify to fail with wrong password")
	}
}

func TestVerifyRejectsReplayedResponseForDifferentNonce(t *testing.T) {
	nonce1, _ := NewNonce()
	nonce2, _ := NewNonce()
	resp := Respond("s3cret", nonce1)
	if Verify("s3cret", nonce2, resp) {
		t.Fatal("expected verify to fail when nonce differs")
	}
}

func TestNewNonceIsRandom(t *testing.T) {
	n1, _ := NewNonce()
	n2, _ := NewNonce()
	if string(n1) == string(n2) {
		t.Fatal("expected two nonces to differ")
	}
}
