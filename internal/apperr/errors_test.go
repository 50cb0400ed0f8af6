package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := Newf(KindInconsistentDimensions, "run %q has %d dimensions, want %d", "b.csv", 6, 5)
	wrapped := fmt.Errorf("import: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInconsistentDimensions))
	assert.False(t, errors.Is(wrapped, ErrEmptyDataframe))
	assert.Equal(t, KindInconsistentDimensions, KindOf(wrapped))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(KindStorage, "write dataframe", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "write dataframe: disk full", err.Error())
}

func TestWithContext(t *testing.T) {
	err := Newf(KindZeroVariance, "column %d is constant", 2).WithContext("column", 2)
	assert.Equal(t, 2, err.Context["column"])
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}
