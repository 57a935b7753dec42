package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/aiox-platform/gloser/internal/nats"
)

func TestValidator_QueryBody(t *testing.T) {
	v := NewValidator()

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, v.Validate(QueryBody{Query: "oncology market"}))
	})

	t.Run("missing query", func(t *testing.T) {
		err := v.Validate(QueryBody{})
		require.Error(t, err)
		assert.Equal(t, "query is required", err.Error())
	})

	t.Run("too long", func(t *testing.T) {
		err := v.Validate(QueryBody{Query: strings.Repeat("q", 4001), SessionID: strings.Repeat("s", 129)})
		require.Error(t, err)
		assert.Equal(t, "query must be at most 4000 characters; session_id must be at most 128 characters", err.Error())
	})
}

func TestValidator_NATSRequest(t *testing.T) {
	v := NewValidator()

	err := v.Validate(inats.QueryRequest{Query: "diabetes trials"})
	require.Error(t, err)
	assert.Equal(t, "id is required", err.Error())

	assert.NoError(t, v.Validate(inats.QueryRequest{ID: "r1", Query: "diabetes trials"}))
}
