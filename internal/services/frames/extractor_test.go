package frames

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJPEGQualityToQScale(t *testing.T) {
	assert.Equal(t, 2, jpegQualityToQScale(100))
	assert.Equal(t, 31, jpegQualityToQScale(1))

	mid := jpegQualityToQScale(85)
	assert.GreaterOrEqual(t, mid, 2)
	assert.LessOrEqual(t, mid, 31)
	assert.Less(t, jpegQualityToQScale(90), jpegQualityToQScale(50), "higher quality maps to lower qscale")
}

func TestDataURI(t *testing.T) {
	uri := DataURI([]byte{0xFF, 0xD8, 0xFF})
	assert.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))
	assert.Greater(t, len(uri), len("data:image/jpeg;base64,"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "error one", firstLine("error one\nerror two"))
	assert.Equal(t, "single", firstLine("single"))
	assert.Equal(t, "", firstLine(""))
}
