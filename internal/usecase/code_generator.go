package usecase

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
)

const (
	codeSegments     = 4
	codeSegmentBytes = 2
)

// generateActivationCode creates a secure, random, and human-readable activation code.
// Format: XXXX-XXXX-XXXX-XXXX (uppercase hex)
func generateActivationCode() (string, error) {
	buffer := make([]byte, codeSegments*codeSegmentBytes)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}

	parts := make([]string, codeSegments)
	for i := range parts {
		seg := buffer[i*codeSegmentBytes : (i+1)*codeSegmentBytes]
		parts[i] = strings.ToUpper(hex.EncodeToString(seg))
	}
	return strings.Join(parts, "-"), nil
}
