package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	IDNumber string `json:"id_number" validate:"required,numeric"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Internal string `json:"-" validate:"omitempty,max=2"`
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(signup{IDNumber: "12a", Email: "nope", Password: "123", Internal: "abc"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "must contain only digits", verr.Fields["id_number"])
	assert.Equal(t, "must be a valid email address", verr.Fields["email"])
	assert.Equal(t, "must be at least 6 characters", verr.Fields["password"])
	assert.Contains(t, verr.Fields, "Internal")
	assert.Contains(t, verr.Error(), "email: must be a valid email address")
}

func TestStructAcceptsValidInput(t *testing.T) {
	assert.NoError(t, Struct(signup{IDNumber: "12345678", Email: "ana@example.com", Password: "secret1"}))
}

func TestNewError(t *testing.T) {
	err := NewError("amount", "must be positive")
	assert.Equal(t, "validation failed: amount: must be positive", err.Error())
}
