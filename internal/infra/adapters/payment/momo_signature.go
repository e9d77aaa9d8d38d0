package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Field orders MoMo signs over. Values are joined as k=v&k=v in exactly this order.
var (
	createFields = []string{
		"accessKey", "amount", "extraData", "ipnUrl", "orderId", "orderInfo",
		"partnerCode", "redirectUrl", "requestId", "requestType",
	}
	callbackFields = []string{
		"accessKey", "amount", "extraData", "message", "orderId", "orderInfo",
		"orderType", "partnerCode", "payType", "requestId", "responseTime",
		"resultCode", "transId",
	}
)

func rawSignature(order []string, data map[string]string) string {
	parts := make([]string, len(order))
	for i, k := range order {
		parts[i] = k + "=" + data[k]
	}
	return strings.Join(parts, "&")
}

func sign(secret, raw string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyMoMoSignature checks a callback's signature against the secret key.
// data holds the callback fields as received; accessKey is filled in by the caller.
func VerifyMoMoSignature(secret string, data map[string]string, signature string) bool {
	expected := sign(secret, rawSignature(callbackFields, data))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
