package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type joinRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=32"`
	ChannelID   string `json:"channel_id" validate:"required,uuid"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate(joinRequest{DisplayName: "bob", ChannelID: "6f1c2b9e-8d4a-4f7e-9b3a-2c1d0e5f6a7b"})
	assert.True(t, ok)

	errs, ok := v.Validate(joinRequest{ChannelID: "nope"})
	assert.False(t, ok)
	assert.ElementsMatch(t, []ValidationError{
		{Field: "display_name", Code: "REQUIRED", Message: "display_name is required"},
		{Field: "channel_id", Code: "UUID", Message: "channel_id must be a uuid"},
	}, errs)
}
