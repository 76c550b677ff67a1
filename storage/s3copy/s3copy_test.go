package s3copy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsS3URI(t *testing.T) {
	assert.True(t, IsS3URI("s3://bucket/key.csv"))
	assert.False(t, IsS3URI("/tmp/out.csv"))
	assert.False(t, IsS3URI("https://example.com/key.csv"))
}

func TestParseURI(t *testing.T) {
	bucket, key, err := parseURI("s3://bucket/path/to/key.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "path/to/key.csv", key)
}

func TestParseURIRejectsNonS3Scheme(t *testing.T) {
	_, _, err := parseURI("https://bucket/key.csv")
	require.Error(t, err)
}

func TestParseURIRejectsMissingBucket(t *testing.T) {
	_, _, err := parseURI("s3:///key.csv")
	require.Error(t, err)
}
