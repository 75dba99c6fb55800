package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	const url = "http://127.0.0.1:8787/api/files/f1/view"

	name, args, err := command("linux", url)
	require.NoError(t, err)
	assert.Equal(t, "xdg-open", name)
	assert.Equal(t, []string{url}, args)

	name, args, err = command("windows", url)
	require.NoError(t, err)
	assert.Equal(t, "rundll32", name)
	assert.Equal(t, url, args[1])

	_, _, err = command("plan9", url)
	assert.Error(t, err)
}
