package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundIs(t *testing.T) {
	err := fmt.Errorf("loading: %w", NotFound("account", 7))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "account 7 not found")

	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "account", nf.Kind)
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "amount", Reason: "must be positive"}
	assert.Equal(t, "invalid amount: must be positive", err.Error())
}
