package encryption

import (
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	svc, err := Open(filepath.Join(dir, ".reef-keys"), "test-master-secret")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc
}

func TestEncryptRoundTrip(t *testing.T) {
	svc := newTestService(t)

	ct, err := svc.Encrypt("secret42")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsEncrypted(ct) {
		t.Fatalf("expected ciphertext to carry PWENC marker, got %q", ct)
	}

	pt, err := svc.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "secret42" {
		t.Fatalf("expected round trip to return secret42, got %q", pt)
	}
}

func TestDecryptPassthroughWhenUnmarked(t *testing.T) {
	svc := newTestService(t)

	pt, err := svc.Decrypt("plain-value")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "plain-value" {
		t.Fatalf("expected passthrough, got %q", pt)
	}

	pt, err = svc.Decrypt("")
	if err != nil {
		t.Fatalf("Decrypt empty: %v", err)
	}
	if pt != "" {
		t.Fatalf("expected empty passthrough, got %q", pt)
	}
}

func TestIsEncrypted(t *testing.T) {
	cases := map[string]bool{
		"PWENC: abc :: def": true,
		"plain":             false,
		"":                  false,
	}
	for in, want := range cases {
		if got := IsEncrypted(in); got != want {
			t.Errorf("IsEncrypted(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPersistedKeypairSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".reef-keys")
	svc1, err := Open(dir, "master")
	if err != nil {
		t.Fatalf("Open first: %v", err)
	}
	ct, err := svc1.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	svc2, err := Open(dir, "master")
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	pt, err := svc2.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt after reopen: %v", err)
	}
	if pt != "hello" {
		t.Fatalf("expected hello, got %q", pt)
	}
}

func TestOpenFailsWhenMasterSecretChanges(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".reef-keys")
	if _, err := Open(dir, "original-secret"); err != nil {
		t.Fatalf("Open first: %v", err)
	}
	if _, err := Open(dir, "different-secret"); err == nil {
		t.Fatalf("expected Open to fail when master secret changed")
	}
}

func TestMaskSecretsIdempotent(t *testing.T) {
	cfg := `{"host":"h","password":"p1"}`
	masked, err := MaskSecrets(cfg, "FTP")
	if err != nil {
		t.Fatalf("MaskSecrets: %v", err)
	}
	masked2, err := MaskSecrets(masked, "FTP")
	if err != nil {
		t.Fatalf("MaskSecrets again: %v", err)
	}
	if masked != masked2 {
		t.Fatalf("expected MaskSecrets to be idempotent: %q != %q", masked, masked2)
	}
}

func TestMergeReplacesSentinelWithStored(t *testing.T) {
	stored := `{"host":"h","password":"p1"}`
	incoming := `{"host":"h2","password":"[SECRET]"}`

	merged, err := Merge(incoming, stored, "FTP")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged != `{"host":"h2","password":"p1"}` {
		t.Fatalf("unexpected merge result: %s", merged)
	}
}

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	svc := newTestService(t)
	cfg := `{"host":"h","password":"p1","port":21}`

	enc, err := svc.EncryptSecrets(cfg, "FTP")
	if err != nil {
		t.Fatalf("EncryptSecrets: %v", err)
	}
	if enc == cfg {
		t.Fatalf("expected config to change after encryption")
	}

	dec, err := svc.DecryptSecrets(enc, "FTP")
	if err != nil {
		t.Fatalf("DecryptSecrets: %v", err)
	}

	redec, err := svc.EncryptSecrets(dec, "FTP")
	if err != nil {
		t.Fatalf("re-encrypt: %v", err)
	}
	rt, err := svc.DecryptSecrets(redec, "FTP")
	if err != nil {
		t.Fatalf("re-decrypt: %v", err)
	}
	if rt != dec {
		t.Fatalf("round trip mismatch: %s != %s", rt, dec)
	}
}
