package memory

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAppend(t *testing.T) {
	s := New()
	ref, err := s.AppendTransaction(context.Background(), core.Transaction{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "mem:1", ref)

	ref, err = s.AppendTransaction(context.Background(), core.Transaction{ID: "b"})
	require.NoError(t, err)
	assert.Equal(t, "mem:2", ref)
	assert.Len(t, s.Rows(), 2)
}

func TestStoreAppendFailure(t *testing.T) {
	s := New()
	boom := errors.New("quota exceeded")
	s.SetErr(boom)

	_, err := s.AppendTransaction(context.Background(), core.Transaction{ID: "a"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Rows())

	s.SetErr(nil)
	_, err = s.AppendTransaction(context.Background(), core.Transaction{ID: "a"})
	assert.NoError(t, err)
}

func TestStoreAppendRequiresID(t *testing.T) {
	_, err := New().AppendTransaction(context.Background(), core.Transaction{})
	assert.Error(t, err)
}
