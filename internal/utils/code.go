package utils

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // omit easily confused chars

// GenerateCode returns n random characters from codeAlphabet (default 6).
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		idxBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idxBig.Int64()]
	}
	return string(b), nil
}

// StudentQRCode is the token printed on a student's ID card.
func StudentQRCode(n int) (string, error) {
	code, err := GenerateCode(n)
	if err != nil {
		return "", err
	}
	return "LAMMS-" + code, nil
}
