package crypto

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r-Secret!", 4)
	require.NoError(t, err)
	require.NotEqual(t, "Sup3r-Secret!", hash)

	require.True(t, VerifyPassword(hash, "Sup3r-Secret!"))
	require.False(t, VerifyPassword(hash, "wrong-password"))
}

func TestHashPasswordClampsInvalidCost(t *testing.T) {
	hash, err := HashPassword("Sup3r-Secret!", -1)
	require.NoError(t, err)
	require.True(t, VerifyPassword(hash, "Sup3r-Secret!"))
}

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	a, err := GenerateToken(48)
	require.NoError(t, err)
	b, err := GenerateToken(48)
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)

	_, err = strconv.Atoi(code)
	require.NoError(t, err)
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		want     error
	}{
		{"too short", "Ab1!", ErrPasswordTooShort},
		{"missing uppercase", "lowercase1!", ErrPasswordNoUpper},
		{"missing lowercase", "UPPERCASE1!", ErrPasswordNoLower},
		{"missing digit", "NoDigits!!", ErrPasswordNoDigit},
		{"missing symbol", "NoSymbols11", ErrPasswordNoSymbol},
		{"valid", "Str0ng-Pass", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tc.password)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}
