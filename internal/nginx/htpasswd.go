package nginx

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// WriteHtpasswd writes a single-entry htpasswd file with a bcrypt hash,
// replacing any prior file. Mode 0600: the file holds a credential hash and
// only the proxy needs to read it.
func WriteHtpasswd(path, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing basic-auth password: %w", err)
	}

	line := fmt.Sprintf("%s:%s\n", username, hash)
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		return fmt.Errorf("writing htpasswd file: %w", err)
	}
	return nil
}
