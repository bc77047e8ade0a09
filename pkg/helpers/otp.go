package helpers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	otpDigits        = 6
	opaqueTokenBytes = 32
)

var otpMax = big.NewInt(1_000_000)

// KeyResendCooldown is the Redis key guarding verification re-sends for a user.
func KeyResendCooldown(uid string) string {
	return "verify:resend:" + uid
}

// GenOTPCode generates a uniformly distributed 6-digit code, zero-padded.
func GenOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// GenOpaqueToken returns 32 random bytes hex-encoded.
func GenOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
