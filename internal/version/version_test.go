package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCurrentVersion(t *testing.T) {
	assert.Equal(t, DevVersion, GetCurrentVersion("dev"))
	assert.Equal(t, DevVersion, GetCurrentVersion("demo"))
	assert.Equal(t, Version, GetCurrentVersion("prod"))
}

func TestSemverHelpers(t *testing.T) {
	assert.True(t, IsValid("0.1.0"))
	assert.True(t, IsValid("v1.2.3"))
	assert.False(t, IsValid("latest"))

	assert.True(t, IsPrerelease(DevVersion))
	assert.False(t, IsPrerelease("1.0.0"))
}

func TestString(t *testing.T) {
	old := GitCommit
	t.Cleanup(func() { GitCommit = old })

	GitCommit = "unknown"
	assert.Equal(t, Version, String("prod"))

	GitCommit = "0123456789abcdef"
	assert.Equal(t, Version+"+01234567", String("prod"))
}
