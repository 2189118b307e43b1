package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,phone"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(&samplePayload{
		Email: "requestor@example.com",
		Phone: "03001234567",
	})
	require.NoError(t, err)
}

func TestValidateStructCollectsFailures(t *testing.T) {
	err := ValidateStruct(&samplePayload{Email: "not-an-email", Phone: "abc"})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, failures, 2)
	require.Equal(t, "email", failures[0].Field)
	require.Equal(t, "phone", failures[1].Field)
}

func TestPhoneRule(t *testing.T) {
	valid := []string{"03001234567", "+923001234567", "0300-1234567", "0300 1234567"}
	for _, number := range valid {
		require.NoError(t, ValidateStruct(&samplePayload{Email: "a@b.com", Phone: number}), number)
	}

	invalid := []string{"", "12", "phone-number", "++920300"}
	for _, number := range invalid {
		require.Error(t, ValidateStruct(&samplePayload{Email: "a@b.com", Phone: number}), number)
	}
}
