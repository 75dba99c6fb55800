package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUploadSize(t *testing.T) {
	t.Run("exactly at limit", func(t *testing.T) {
		assert.NoError(t, ValidateUploadSize("plan.pdf", MaxUploadSize))
	})

	t.Run("one byte over", func(t *testing.T) {
		err := ValidateUploadSize("plan.pdf", MaxUploadSize+1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "plan.pdf")
		assert.Contains(t, err.Error(), "500 MiB")
	})

	t.Run("empty file", func(t *testing.T) {
		assert.NoError(t, ValidateUploadSize("empty.pdf", 0))
	})
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1 KiB"},
		{1536, "1.5 KiB"},
		{MaxUploadSize, "500 MiB"},
		{3 * 1024 * 1024 * 1024, "3 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), "FormatBytes(%d)", tt.in)
	}
}

func TestSessionIsAdmin(t *testing.T) {
	admin := NewSession("tok", User{ID: "u1", Email: "a@b.c", Role: RoleSuperAdmin})
	viewer := NewSession("tok", User{ID: "u2", Email: "v@b.c", Role: RoleViewer})

	assert.True(t, admin.IsAdmin())
	assert.False(t, viewer.IsAdmin())
	assert.Equal(t, "u1", admin.UserID)
	assert.Equal(t, "a@b.c", admin.Email)
}
