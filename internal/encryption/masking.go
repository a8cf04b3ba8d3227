package encryption

import (
	"encoding/json"
	"fmt"
	"strings"
)

// secretFieldAllowlist is a per-destination-kind, case-insensitive set of
// JSON leaf field names considered secret. Keys are lower-cased on lookup so
// "Password", "password" and "PASSWORD" all match.
var secretFieldAllowlist = map[string]map[string]bool{
	"FTP":          setOf("password", "privatekeypath", "privatekeypassphrase"),
	"SFTP":         setOf("password", "privatekeypath", "privatekeypassphrase"),
	"S3":           setOf("accesskey", "secretkey"),
	"AzureBlob":    setOf("connectionstring"),
	"HTTP":         setOf("password", "authtoken", "apikey", "oauthtoken", "clientsecret"),
	"Email":        setOf("password", "smtppassword", "resendapikey", "sendgridapikey", "oauthtoken"),
	"NetworkShare": setOf("password"),
	"WebDav":       setOf("password"),
	"Local":        {},
}

func setOf(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// AllowlistFor returns the secret-field allow list for a destination kind.
// Unknown kinds get a conservative default set.
func AllowlistFor(kind string) map[string]bool {
	if m, ok := secretFieldAllowlist[kind]; ok {
		return m
	}
	return setOf("password", "secretkey", "accesskey", "authtoken", "apikey", "connectionstring")
}

// walkFn is invoked for every string leaf in a JSON object. It returns the
// (possibly transformed) replacement value.
type walkFn func(key string, value string) string

// walkSecrets parses configJSON as a JSON object, applies fn to every string
// leaf whose (lower-cased) key is in allow, and re-serializes the result.
// Nested objects are walked recursively; arrays of objects are walked
// element-wise. Non-object top-level documents are returned unchanged.
func walkSecrets(configJSON string, allow map[string]bool, fn walkFn) (string, error) {
	if strings.TrimSpace(configJSON) == "" {
		return configJSON, nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(configJSON), &doc); err != nil {
		return "", fmt.Errorf("encryption: masking: invalid config JSON: %w", err)
	}
	walkMap(doc, allow, fn)
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encryption: masking: failed to re-marshal config: %w", err)
	}
	return string(out), nil
}

func walkMap(m map[string]interface{}, allow map[string]bool, fn walkFn) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if allow[strings.ToLower(k)] {
				m[k] = fn(k, val)
			}
		case map[string]interface{}:
			walkMap(val, allow, fn)
		case []interface{}:
			walkSlice(val, allow, fn)
		}
	}
}

func walkSlice(s []interface{}, allow map[string]bool, fn walkFn) {
	for _, item := range s {
		if m, ok := item.(map[string]interface{}); ok {
			walkMap(m, allow, fn)
		}
	}
}

// EncryptSecrets walks configJSON and replaces every secret leaf with its
// encrypted form, skipping leaves that are already "PWENC:"-prefixed.
func (s *Service) EncryptSecrets(configJSON, kind string) (string, error) {
	allow := AllowlistFor(kind)
	var encErr error
	out, err := walkSecrets(configJSON, allow, func(_ string, value string) string {
		if IsEncrypted(value) || encErr != nil {
			return value
		}
		ct, err := s.Encrypt(value)
		if err != nil {
			encErr = err
			return value
		}
		return ct
	})
	if err != nil {
		return "", err
	}
	if encErr != nil {
		return "", fmt.Errorf("encryption: encrypt_secrets: %w", encErr)
	}
	return out, nil
}

// DecryptSecrets is the inverse of EncryptSecrets.
func (s *Service) DecryptSecrets(configJSON, kind string) (string, error) {
	allow := AllowlistFor(kind)
	var decErr error
	out, err := walkSecrets(configJSON, allow, func(_ string, value string) string {
		if decErr != nil {
			return value
		}
		pt, err := s.Decrypt(value)
		if err != nil {
			decErr = err
			return value
		}
		return pt
	})
	if err != nil {
		return "", err
	}
	if decErr != nil {
		return "", fmt.Errorf("encryption: decrypt_secrets: %w", decErr)
	}
	return out, nil
}

// MaskSecrets unconditionally replaces every secret leaf with Sentinel.
// Idempotent: MaskSecrets(MaskSecrets(c)) == MaskSecrets(c).
func MaskSecrets(configJSON, kind string) (string, error) {
	allow := AllowlistFor(kind)
	return walkSecrets(configJSON, allow, func(_ string, _ string) string {
		return Sentinel
	})
}

// Merge combines an incoming (UI-submitted, possibly masked) config with the
// stored config: for each secret leaf, a Sentinel value in incoming takes the
// stored value; any other value in incoming is taken as-is (to be encrypted
// later by the caller). Non-secret fields always come from incoming.
func Merge(incomingJSON, storedJSON, kind string) (string, error) {
	allow := AllowlistFor(kind)

	var stored map[string]interface{}
	if strings.TrimSpace(storedJSON) != "" {
		if err := json.Unmarshal([]byte(storedJSON), &stored); err != nil {
			return "", fmt.Errorf("encryption: merge: invalid stored JSON: %w", err)
		}
	}

	var incoming map[string]interface{}
	if strings.TrimSpace(incomingJSON) == "" {
		incoming = map[string]interface{}{}
	} else if err := json.Unmarshal([]byte(incomingJSON), &incoming); err != nil {
		return "", fmt.Errorf("encryption: merge: invalid incoming JSON: %w", err)
	}

	mergeMap(incoming, stored, allow)

	out, err := json.Marshal(incoming)
	if err != nil {
		return "", fmt.Errorf("encryption: merge: failed to re-marshal: %w", err)
	}
	return string(out), nil
}

func mergeMap(incoming, stored map[string]interface{}, allow map[string]bool) {
	for k, v := range incoming {
		storedVal, hasStored := stored[k]
		switch val := v.(type) {
		case string:
			if allow[strings.ToLower(k)] && val == Sentinel {
				if hasStored {
					if sv, ok := storedVal.(string); ok {
						incoming[k] = sv
						continue
					}
				}
			}
		case map[string]interface{}:
			if sm, ok := storedVal.(map[string]interface{}); ok {
				mergeMap(val, sm, allow)
			}
		}
	}
}
