// Package encryption implements Reef's hybrid asymmetric-key-wrapped
// symmetric encryption for secrets-at-rest, following the same
// transparent, package-initialized-once shape as server/internal/db's
// encrypt.go, generalized from a single static AES key to
// a self-managed RSA keypair whose private half is itself wrapped under a
// symmetric key derived from a master secret.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Marker is the literal prefix every ciphertext produced by Encrypt begins
// with.
const Marker = "PWENC:"

// Sentinel is the literal value returned to UI callers in place of a secret.
const Sentinel = "[SECRET]"

const (
	recoveryFile = "recovery.baklz4"  // wrapped RSA private key
	snapshotFile = "snapshot_blob.bin" // RSA public key
	storeFile    = "store.jsonc"      // machine identity marker
)

// Service holds the process-wide RSA keypair and exposes encrypt/decrypt.
// The zero value is not usable — build one with Open.
type Service struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

// Open loads (or, on first use, generates and persists) the RSA keypair
// stored in a hidden directory next to the catalog. masterSecret wraps the
// private key at rest; it is resolved by the caller using this priority
// order: machine env var → process env var → .env file → fallback constant —
// see LoadMasterSecret.
func Open(keyDir string, masterSecret string) (*Service, error) {
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("encryption: failed to create key directory: %w", err)
	}

	recoveryPath := filepath.Join(keyDir, recoveryFile)
	snapshotPath := filepath.Join(keyDir, snapshotFile)
	storePath := filepath.Join(keyDir, storeFile)

	wrapKey := deriveWrapKey(masterSecret)

	if _, err := os.Stat(recoveryPath); errors.Is(err, os.ErrNotExist) {
		return generateAndPersist(recoveryPath, snapshotPath, storePath, wrapKey)
	}

	wrapped, err := os.ReadFile(recoveryPath)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to read key material: %w", err)
	}
	pubBytes, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to read public key: %w", err)
	}

	privDER, err := unwrap(wrapped, wrapKey)
	if err != nil {
		// The master secret changed (or the file is corrupt) — this is fatal:
		// the operator must delete the key directory to regenerate, accepting
		// that every existing ciphertext becomes unrecoverable.
		return nil, fmt.Errorf("encryption: failed to unwrap private key (master secret changed?): %w; delete %s to regenerate", err, keyDir)
	}
	priv, err := x509.ParsePKCS1PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to parse private key: %w", err)
	}
	pub, err := x509.ParsePKCS1PublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to parse public key: %w", err)
	}

	return &Service{priv: priv, pub: pub}, nil
}

func generateAndPersist(recoveryPath, snapshotPath, storePath string, wrapKey []byte) (*Service, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to generate RSA keypair: %w", err)
	}

	privDER := x509.MarshalPKCS1PrivateKey(priv)
	wrapped, err := wrap(privDER, wrapKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to wrap private key: %w", err)
	}
	if err := os.WriteFile(recoveryPath, wrapped, 0o600); err != nil {
		return nil, fmt.Errorf("encryption: failed to persist private key: %w", err)
	}

	pubDER := x509.MarshalPKCS1PublicKey(&priv.PublicKey)
	if err := os.WriteFile(snapshotPath, pubDER, 0o600); err != nil {
		return nil, fmt.Errorf("encryption: failed to persist public key: %w", err)
	}

	identity := fmt.Sprintf(`{"created_with":"reef","key_fingerprint":"%x"}`, sha256.Sum256(pubDER))
	if err := os.WriteFile(storePath, []byte(identity), 0o600); err != nil {
		return nil, fmt.Errorf("encryption: failed to persist identity marker: %w", err)
	}

	return &Service{priv: priv, pub: &priv.PublicKey}, nil
}

// deriveWrapKey turns the master secret into a 32-byte AES key via SHA-256,
// so any non-empty operator-supplied string works regardless of length.
func deriveWrapKey(masterSecret string) []byte {
	sum := sha256.Sum256([]byte(masterSecret))
	return sum[:]
}

// wrap symmetrically encrypts the private key DER with AES-256-GCM under the
// derived wrap key.
func wrap(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func unwrap(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, nil)
}

// Encrypt hybrid-encrypts text: a fresh AES-256 key+IV encrypts the payload
// (AES-GCM, which is authenticated and subsumes the supported CBC+PKCS7
// alternative), and the key‖IV pair is wrapped with RSA-OAEP-SHA256
// under the service's public key. Wire format:
//
//	PWENC: <base64(rsa_encrypted_keyIV)> :: <base64(symmetric_ciphertext)>
func (s *Service) Encrypt(text string) (string, error) {
	symKey := make([]byte, 32)
	iv := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, symKey); err != nil {
		return "", fmt.Errorf("encryption: failed to generate symmetric key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("encryption: failed to generate iv: %w", err)
	}

	block, err := aes.NewCipher(symKey)
	if err != nil {
		return "", fmt.Errorf("encryption: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return "", fmt.Errorf("encryption: failed to create gcm: %w", err)
	}
	ciphertext := gcm.Seal(nil, iv, []byte(text), nil)

	keyIV := append(append([]byte{}, symKey...), iv...)
	rsaEnc, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, s.pub, keyIV, nil)
	if err != nil {
		return "", fmt.Errorf("encryption: failed to rsa-wrap key material: %w", err)
	}

	return Marker + " " + base64.StdEncoding.EncodeToString(rsaEnc) + " :: " + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. If text lacks the Marker prefix, it is returned
// unchanged unless it is blank (an empty string decrypts to an empty string).
func (s *Service) Decrypt(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	if !IsEncrypted(text) {
		return text, nil
	}

	body := strings.TrimSpace(strings.TrimPrefix(text, Marker))
	parts := strings.SplitN(body, "::", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("encryption: malformed ciphertext: missing '::' separator")
	}

	rsaEnc, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", fmt.Errorf("encryption: failed to decode key material: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", fmt.Errorf("encryption: failed to decode payload: %w", err)
	}

	keyIV, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, s.priv, rsaEnc, nil)
	if err != nil {
		return "", fmt.Errorf("encryption: failed to rsa-unwrap key material: %w", err)
	}
	if len(keyIV) != 32+16 {
		return "", fmt.Errorf("encryption: unexpected key material length %d", len(keyIV))
	}
	symKey, iv := keyIV[:32], keyIV[32:]

	block, err := aes.NewCipher(symKey)
	if err != nil {
		return "", fmt.Errorf("encryption: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return "", fmt.Errorf("encryption: failed to create gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("encryption: failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether text carries the "PWENC:" marker.
func IsEncrypted(text string) bool {
	return strings.HasPrefix(text, Marker)
}

// LoadMasterSecret resolves the master secret used to wrap the private key,
// in priority order: machine-scoped env var, process env var, a .env file
// next to the catalog, then a fallback constant. machineEnv and processEnv
// are the already-read variable values (blank means unset) and dotEnvPath
// names the .env file to read REEF_ENCRYPTION_KEY from; reefd and reefctl
// pass "", os.Getenv("REEF_ENCRYPTION_KEY") and ".env".
func LoadMasterSecret(machineEnv, processEnv string, dotEnvPath string) string {
	if v, ok := lookupNonEmpty(machineEnv); ok {
		return v
	}
	if v, ok := lookupNonEmpty(processEnv); ok {
		return v
	}
	if v, ok := readDotEnv(dotEnvPath, "REEF_ENCRYPTION_KEY"); ok {
		return v
	}
	return "reef-default-master-secret-do-not-use-in-production"
}

func lookupNonEmpty(v string) (string, bool) {
	if v != "" {
		return v, true
	}
	return "", false
}

func readDotEnv(path, key string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.TrimSpace(kv[0]) == key {
			return strings.Trim(strings.TrimSpace(kv[1]), `"'`), true
		}
	}
	return "", false
}
