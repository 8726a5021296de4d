package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilenameSortsArchitectures(t *testing.T) {
	got := Filename("nzbget", 11, 1594, []string{"qoriq", "88f628x"})
	assert.Equal(t, "nzbget.v11.f1594[88f628x-qoriq].spk", got)
}

func TestFilenameSingleArchitecture(t *testing.T) {
	got := Filename("nzbget", 11, 1594, []string{"noarch"})
	assert.Equal(t, "nzbget.v11.f1594[noarch].spk", got)
}

func TestRelativePath(t *testing.T) {
	filename := Filename("nzbget", 11, 1594, []string{"88f628x"})
	got := RelativePath("nzbget", 11, filename)
	assert.Equal(t, "nzbget/11/nzbget.v11.f1594[88f628x].spk", got)
}
