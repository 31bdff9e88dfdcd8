package hasher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	data := []byte("imgcrush")
	full := ContentHash(data, 0)
	assert.Len(t, full, 16)
	assert.Equal(t, full[:HexLen], ContentHash(data, HexLen))
	assert.Equal(t, full[:8], ContentHash(data, 8))
	assert.NotEqual(t, full, ContentHash([]byte("imgcrusH"), 0))

	streamed, err := ContentHashReader(bytes.NewReader(data), 8)
	require.NoError(t, err)
	assert.Equal(t, full[:8], streamed)

	// xxHash64 of the empty input is a published constant.
	assert.Equal(t, "ef46db3751d8e999", ContentHash(nil, 0))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestContentHashReaderError(t *testing.T) {
	_, err := ContentHashReader(failingReader{}, 8)
	assert.EqualError(t, err, "boom")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "hero.320.160.0123abcd.webp",
		FileName("banners/hero", 320, 160, "0123abcd4567ef00", "webp"))
	assert.Equal(t, "logo.10.10.ab.png", FileName("logo", 10, 10, "ab", "png"))
}
