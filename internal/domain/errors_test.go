package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, CodePermissionDenied, Code(fmt.Errorf("publish: %w", ErrPermissionDenied)))
	assert.Equal(t, CodeNotAMember, Code(ErrNotAMember))
	assert.Equal(t, CodeNotFound, Code(ErrMemberNotFound))
	assert.Equal(t, CodeConflict, Code(ErrLastAdmin))
	assert.Equal(t, CodeTransient, Code(fmt.Errorf("%w: %w", ErrTransient, errors.New("i/o timeout"))))
	assert.Equal(t, CodeInternal, Code(errors.New("boom")))
}

func TestNotAMemberIsAuthorizationFailure(t *testing.T) {
	assert.ErrorIs(t, ErrNotAMember, ErrPermissionDenied)
	assert.ErrorIs(t, FromCode(CodeNotAMember), ErrPermissionDenied)
	assert.ErrorIs(t, FromCode(CodePermissionDenied), ErrPermissionDenied)
	assert.NoError(t, FromCode("unheard_of"))
}
