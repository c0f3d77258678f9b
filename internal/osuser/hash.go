package osuser

import (
	"fmt"

	"github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
)

// saltAlphabet is the crypt(3) salt character set.
const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789./"

const saltLen = 16

// hashSecret produces a crypt(3) SHA-512 hash ($6$...) with a fresh random
// salt, the format useradd -p and usermod -p write into /etc/shadow.
func hashSecret(secret string) (string, error) {
	salt, err := common.MakeRandString(nil, saltLen, saltAlphabet)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	hash, err := sha512_crypt.New().Generate([]byte(secret), []byte("$6$"+salt))
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return hash, nil
}
