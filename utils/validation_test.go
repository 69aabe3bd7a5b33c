package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createClientInput struct {
	Name  string `validate:"required,min=2,max=255"`
	Email string `validate:"required,email"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid input passes", func(t *testing.T) {
		err := ValidateStruct(createClientInput{Name: "Acme Corp", Email: "billing@acme.test"})
		assert.NoError(t, err)
	})

	t.Run("missing fields reported per field", func(t *testing.T) {
		err := ValidateStruct(createClientInput{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Name")
		assert.Contains(t, fields, "Email")
	})

	t.Run("bad email reported", func(t *testing.T) {
		err := ValidateStruct(createClientInput{Name: "Acme Corp", Email: "not-an-email"})
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Contains(t, fields["Email"], "valid email")
	})
}

func TestParseUUID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		id, err := ParseUUID("a2b8b6ce-80e0-4a73-9c14-6429da9a2a7c", "client_id")
		require.NoError(t, err)
		assert.Equal(t, "a2b8b6ce-80e0-4a73-9c14-6429da9a2a7c", id.String())
	})

	t.Run("invalid names the field", func(t *testing.T) {
		_, err := ParseUUID("nope", "client_id")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client_id")
	})
}
