package utils

import (
	"errors"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hashed, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hashed, "s3cret!") {
		t.Error("CheckPassword rejected the right password")
	}
	if CheckPassword(hashed, "wrong") {
		t.Error("CheckPassword accepted a wrong password")
	}
	if CheckPassword("", "") {
		t.Error("CheckPassword accepted an empty hash")
	}
	if _, err := HashPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("HashPassword(\"\") err = %v, want ErrEmptyPassword", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("HashToken is not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("HashToken collides on different input")
	}
	if len(HashToken("abc")) != 64 {
		t.Errorf("digest length = %d, want 64", len(HashToken("abc")))
	}
}
