package domain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMalformedDocument(t *testing.T) {
	err := NewMalformedDocument(FieldTitle, "bundestag", "is missing")

	assert.True(t, errors.Is(err, ErrMalformedDocument))
	assert.False(t, errors.Is(err, ErrUpstreamUnavailable))

	var mde *MalformedDocumentError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, FieldTitle, mde.Field)
	assert.Equal(t, "bundestag", mde.Source)
	assert.Contains(t, err.Error(), `field "title" is missing`)
}
