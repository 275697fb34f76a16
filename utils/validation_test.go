package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	GroupID uint   `validate:"required"`
	Email   string `validate:"required,email"`
	Role    string `validate:"oneof=Chair Critic Member"`
}

func TestValidateStruct(t *testing.T) {
	assert.Nil(t, ValidateStruct(sampleRequest{GroupID: 1, Email: "a@b.co", Role: "Chair"}))

	fields := ValidateStruct(sampleRequest{Email: "nope", Role: "Boss"})
	assert.Equal(t, "is required", fields["group_id"])
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Contains(t, fields["role"], "must be one of")
}
