package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r!secret")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3r!secret", hash)
	assert.True(t, CheckPasswordHash("Sup3r!secret", hash))
	assert.False(t, CheckPasswordHash("wrong-password", hash))
}

func TestHashPasswordIdempotent(t *testing.T) {
	hash, err := HashPassword("Sup3r!secret")
	require.NoError(t, err)

	// Hashing an existing hash must not wrap it a second time.
	again, err := HashPassword(hash)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
	assert.True(t, CheckPasswordHash("Sup3r!secret", again))
}

func TestGenerateOTP(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		otp, err := GenerateOTP(length)
		require.NoError(t, err)
		require.Len(t, otp, length)
		for _, r := range otp {
			assert.True(t, r >= '0' && r <= '9', "OTP must be numeric, got %q", otp)
		}
	}
}

func TestGenerateOTPInvalidLength(t *testing.T) {
	_, err := GenerateOTP(0)
	assert.Error(t, err)

	_, err = GenerateOTP(-1)
	assert.Error(t, err)
}

func TestIsStrongPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"all character classes", "Abcdef1!", true},
		{"longer valid password", "correct-Horse-7-battery", true},
		{"too short", "Ab1!xyz", false},
		{"missing upper case", "abcdef1!", false},
		{"missing lower case", "ABCDEF1!", false},
		{"missing digit", "Abcdefg!", false},
		{"missing symbol", "Abcdefg1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStrongPassword(tt.password))
		})
	}
}
