package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressAndEmailValidators(t *testing.T) {
	type body struct {
		Wallet    string `binding:"required,ethaddr"`
		Recipient string `binding:"required,walletoremail"`
		Hash      string `binding:"omitempty,txhash"`
	}
	v := NewValidator()

	tests := []struct {
		name string
		in   body
		ok   bool
	}{
		{"wallet recipient", body{"0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41", "0x1111111111111111111111111111111111111111", ""}, true},
		{"email recipient", body{"0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41", "fan@example.com", ""}, true},
		{"short wallet", body{"0x2F8cE5B4a3", "fan@example.com", ""}, false},
		{"no 0x prefix", body{"2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41aa", "fan@example.com", ""}, false},
		{"bad recipient", body{"0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41", "fan@example", ""}, false},
		{"tx hash", body{"0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41", "fan@example.com", "0x8a2f0c5e3b1d4a6f7e9c0b2d4f6a8c0e2b4d6f8a0c2e4b6d8f0a2c4e6b8d0f2a"}, true},
		{"address as tx hash", body{"0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41", "fan@example.com", "0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			assert.Equal(t, tt.ok, err == nil, "error: %v", err)
		})
	}
}

func TestResultURL(t *testing.T) {
	t.Setenv("APP_HOST", "https://drops.example.com/")
	assert.Equal(t, "https://drops.example.com/dao?paymentResult=success", ResultURL("/dao", true, ""))
	assert.Equal(t, "https://drops.example.com/dao?paymentResult=error&message=price+mismatch", ResultURL("/dao", false, "price mismatch"))
}

func TestNewDownloadCode(t *testing.T) {
	a, b := NewDownloadCode(), NewDownloadCode()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "f**@example.com", MaskEmail("fan@example.com"))
}
