package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitSHA, info.GitSHA)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "1.2.0", GitSHA: "abc1234", BuildTime: "2026-10-01T00:00:00Z", GoVersion: "go1.25.6"}
	assert.Equal(t, "avatartrack 1.2.0 (abc1234, built 2026-10-01T00:00:00Z, go1.25.6)", info.String())
	assert.Contains(t, Get().String(), "avatartrack "+Version)
}
