package reconcile

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Checksum computes the gateway signature over the confirmation fields, in gateway order:
// recAccount:amount:secret:billNo:payerAccount:transID:transDate.
func Checksum(recAccount, amount, secret, billNo, payerAccount, transID, transDate string) string {
	joined := strings.Join([]string{recAccount, amount, secret, billNo, payerAccount, transID, transDate}, ":")
	sum := md5.Sum([]byte(joined))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// checksumEqual compares case-insensitively in constant time.
func checksumEqual(expected, supplied string) bool {
	a := []byte(strings.ToUpper(expected))
	b := []byte(strings.ToUpper(strings.TrimSpace(supplied)))
	return subtle.ConstantTimeCompare(a, b) == 1
}
