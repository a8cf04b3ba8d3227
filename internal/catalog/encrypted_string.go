package catalog

import (
	"database/sql/driver"
	"fmt"

	"github.com/reefdata/reef/internal/encryption"
)

// svc is the process-wide encryption service used to transparently encrypt
// and decrypt EncryptedString columns. It must be installed once at startup
// via SetEncryptionService, before any catalog read/write touches an
// EncryptedString field — mirrors the package-level db.InitEncryption
// pattern, generalized to the hybrid RSA+AES scheme of internal/encryption
// instead of a single symmetric key.
var svc *encryption.Service

// SetEncryptionService installs the encryption service used by all
// EncryptedString columns. Call once during application startup.
func SetEncryptionService(s *encryption.Service) {
	svc = s
}

// EncryptedString is a string column that is transparently hybrid-encrypted
// (see internal/encryption) before being written to the database, and
// decrypted after being read. The stored value always begins with the
// "PWENC:" marker, or is empty.
type EncryptedString string

// Value implements driver.Valuer.
func (e EncryptedString) Value() (driver.Value, error) {
	if e == "" {
		return "", nil
	}
	if svc == nil {
		return nil, fmt.Errorf("catalog: encryption service not initialized, call SetEncryptionService first")
	}
	ct, err := svc.Encrypt(string(e))
	if err != nil {
		return nil, fmt.Errorf("catalog: encrypt column: %w", err)
	}
	return ct, nil
}

// Scan implements sql.Scanner.
func (e *EncryptedString) Scan(value interface{}) error {
	if value == nil {
		*e = ""
		return nil
	}
	str, ok := value.(string)
	if !ok {
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("catalog: EncryptedString.Scan: expected string, got %T", value)
		}
		str = string(b)
	}
	if str == "" {
		*e = ""
		return nil
	}
	if svc == nil {
		return fmt.Errorf("catalog: encryption service not initialized, call SetEncryptionService first")
	}
	pt, err := svc.Decrypt(str)
	if err != nil {
		return fmt.Errorf("catalog: decrypt column: %w", err)
	}
	*e = EncryptedString(pt)
	return nil
}
