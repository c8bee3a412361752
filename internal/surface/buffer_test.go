package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/canvas"
)

func TestBufferTextAndMediaAreIndependent(t *testing.T) {
	var b Buffer
	var err error

	b, err = b.Apply(block(canvas.Main, "md", "# Title"))
	require.NoError(t, err)
	b, err = b.Apply(preview(canvas.Main, "https://www.youtube.com/watch?v=abc"))
	require.NoError(t, err)
	b, err = b.Apply(block(canvas.Main, "text", "more"))
	require.NoError(t, err)

	assert.Equal(t, "# Title\n\nmore", b.Content)
	require.NotNil(t, b.Media)
	assert.Equal(t, canvas.Media{Kind: canvas.MediaVideo, Source: "https://www.youtube.com/embed/abc"}, *b.Media)

	b, err = b.Apply(block(canvas.Main, "threejs", "scene()"))
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nmore", b.Content, "rich blocks leave text alone")
	assert.Equal(t, canvas.MediaScene3D, b.Media.Kind)
}

func TestBufferImageAndCodeBlocks(t *testing.T) {
	b, err := Buffer{}.Apply(block(canvas.Main, "image", " https://x.test/a.png "))
	require.NoError(t, err)
	assert.Equal(t, "![image](https://x.test/a.png)", b.Content)
	assert.Nil(t, b.Media)

	b, err = b.Apply(canvas.Command{Kind: canvas.KindAddBlock, Target: canvas.Main, Block: &canvas.Block{Type: "code", Body: "x := 1\n", Lang: "go"}})
	require.NoError(t, err)
	assert.Equal(t, "![image](https://x.test/a.png)\n\n```go\nx := 1\n```", b.Content)

	b, err = Buffer{}.Apply(block(canvas.Main, "python", "s = '```'"))
	require.NoError(t, err)
	assert.Equal(t, "````python\ns = '```'\n````", b.Content)
}

func TestBufferClearResetsBoth(t *testing.T) {
	b := Buffer{Content: "x", Media: &canvas.Media{Kind: canvas.MediaFrame, Source: "u"}}
	b, err := b.Apply(canvas.Command{Kind: canvas.KindClear, Target: canvas.Main})
	require.NoError(t, err)
	assert.True(t, b.Empty())
}

func TestBufferRestore(t *testing.T) {
	start := Buffer{Content: "old", Media: &canvas.Media{Kind: canvas.MediaFrame, Source: "u"}}
	text := "# Hello"

	b, err := start.Apply(canvas.Command{Kind: canvas.KindRestore, Target: canvas.Main, Restore: &canvas.Restore{Content: &text}})
	require.NoError(t, err)
	assert.Equal(t, "# Hello", b.Content)
	assert.NotNil(t, b.Media, "media untouched without SetMedia")

	b, err = b.Apply(canvas.Command{Kind: canvas.KindRestore, Target: canvas.Main, Restore: &canvas.Restore{SetMedia: true}})
	require.NoError(t, err)
	assert.Nil(t, b.Media)
	assert.Equal(t, "# Hello", b.Content)
}

func TestBufferApplyDoesNotAlias(t *testing.T) {
	start := Buffer{Media: &canvas.Media{Kind: canvas.MediaFrame, Source: "u"}}
	next, err := start.Apply(block(canvas.Main, "md", "x"))
	require.NoError(t, err)
	next.Media.Source = "changed"
	assert.Equal(t, "u", start.Media.Source)
}

func TestBufferRejectsIncompleteCommands(t *testing.T) {
	_, err := Buffer{}.Apply(canvas.Command{Kind: canvas.KindPreview, Target: canvas.Main})
	assert.ErrorIs(t, err, canvas.ErrMalformed)
	_, err = Buffer{}.Apply(canvas.Command{Kind: canvas.KindPreview, Target: canvas.Main, Preview: &canvas.Preview{}})
	assert.ErrorIs(t, err, canvas.ErrEmptyPreview)
	_, err = Buffer{}.Apply(canvas.Command{Kind: "spin", Target: canvas.Main})
	assert.ErrorIs(t, err, canvas.ErrMalformed)
}

func TestLastBlock(t *testing.T) {
	assert.Equal(t, "third", Buffer{Content: "first\n\nsecond\n\nthird\n"}.LastBlock())
	assert.Equal(t, "only", Buffer{Content: "only"}.LastBlock())
	assert.Equal(t, "", Buffer{}.LastBlock())
}
