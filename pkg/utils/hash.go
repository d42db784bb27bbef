package utils

import (
	"crypto/sha256"
	"fmt"
)

func HashText(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:16])
}
