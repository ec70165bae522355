package utils

import (
	"strings"
	"testing"
)

func TestGenerateCodeUsesAlphabet(t *testing.T) {
	code, err := GenerateCode(12)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 12 {
		t.Fatalf("len = %d, want 12", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("unexpected rune %q in %q", r, code)
		}
	}
}

func TestGenerateCodeDefaultsToSix(t *testing.T) {
	code, err := GenerateCode(0)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("len = %d, want 6", len(code))
	}
}

func TestStudentQRCodePrefix(t *testing.T) {
	code, err := StudentQRCode(8)
	if err != nil {
		t.Fatalf("StudentQRCode: %v", err)
	}
	if !strings.HasPrefix(code, "LAMMS-") || len(code) != len("LAMMS-")+8 {
		t.Fatalf("unexpected code %q", code)
	}
	for _, r := range strings.TrimPrefix(code, "LAMMS-") {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("unexpected rune %q in %q", r, code)
		}
	}
}
