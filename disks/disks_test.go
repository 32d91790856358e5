package disks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPredefinedImageProfile(t *testing.T) {
	profile, err := GetPredefinedImageProfile("tiny")
	require.NoError(t, err)
	assert.EqualValues(t, 32, profile.NumInodes)
	assert.EqualValues(t, 32, profile.NumDataBlocks)
}

func TestGetUnknownProfileFails(t *testing.T) {
	_, err := GetPredefinedImageProfile("does-not-exist")
	assert.Error(t, err)
}

func TestAllProfilesAreUsable(t *testing.T) {
	slugs := Slugs()
	require.NotEmpty(t, slugs, "embedded profile table is empty")

	for _, slug := range slugs {
		profile, err := GetPredefinedImageProfile(slug)
		require.NoError(t, err)
		assert.NotZerof(t, profile.NumInodes, "profile %q has no inodes", slug)
		assert.NotZerof(t, profile.NumDataBlocks, "profile %q has no blocks", slug)
	}
}
