package flowerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lguimbarda/deferflow/flow/core"
	"github.com/lguimbarda/deferflow/flow/flowerrors"
	"github.com/stretchr/testify/assert"
)

func TestRetryError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &flowerrors.RetryError{Attempts: 3, Cause: cause}

	assert.Equal(t, "retry: gave up after 3 retries: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	var target *flowerrors.RetryError
	assert.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &target)
	assert.Equal(t, 3, target.Attempts)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, flowerrors.Permanent(nil))

	cause := errors.New("bad request")
	err := flowerrors.Permanent(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Error())
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
		{"permanent", flowerrors.Permanent(errors.New("bad request")), true},
		{"wrapped permanent", fmt.Errorf("op: %w", flowerrors.Permanent(errors.New("x"))), true},
		{"panic", core.NewPanicError("boom"), true},
		{"wrapped panic", fmt.Errorf("stage: %w", core.NewPanicError("boom")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flowerrors.IsFatal(tt.err))
		})
	}
}
