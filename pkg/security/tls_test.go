package security

import "testing"

func TestServerConfigDisabledReturnsNil(t *testing.T) {
	cfg, err := TLSConfig{Enabled: false}.ServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config when TLS disabled")
	}
}

func TestServerConfigSelfSigned(t *testing.T) {
	cfg, err := TLSConfig{Enabled: true}.ServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(cfg.Certificates))
	}
}
