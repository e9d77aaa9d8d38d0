package token

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"activation-code-service/internal/domain/model"
)

var kindPrefix = map[model.CodeKind]string{
	model.CodeKindTrial:      "TRL",
	model.CodeKindPremium:    "PRM",
	model.CodeKindEnterprise: "ENT",
}

// localToken formats PREFIX-XXXX-XXXX-XXXX from crypto/rand. The prefix keeps
// local tokens apart from generated ledger codes and upstream tokens.
func localToken(kind model.CodeKind) string {
	prefix, ok := kindPrefix[kind]
	if !ok {
		prefix = "PRM"
	}
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	parts := []string{prefix}
	for i := 0; i < len(b); i += 2 {
		parts = append(parts, strings.ToUpper(hex.EncodeToString(b[i:i+2])))
	}
	return strings.Join(parts, "-")
}
