package mcp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminUserID(t *testing.T) {
	id, err := adminUserID("")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	want := uuid.New()
	id, err = adminUserID(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, id)

	_, err = adminUserID("admin")
	assert.ErrorContains(t, err, "invalid TUTORHUB_USER_ID")
}

func TestCmd_HasServe(t *testing.T) {
	sub, _, err := Cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", sub.Name())
	assert.NotNil(t, sub.Flags().Lookup("addr"))
}
