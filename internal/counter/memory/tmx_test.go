package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

const sampleTMX = `<?xml version="1.0" encoding="UTF-8"?>
<tmx version="1.4">
  <header srclang="en" datatype="plaintext" segtype="sentence" adminlang="en" o-tmf="none" creationtool="test" creationtoolversion="1"/>
  <body>
    <tu>
      <tuv lang="en"><seg>Hello world!</seg></tuv>
      <tuv lang="de"><seg>Hallo Welt!</seg></tuv>
    </tu>
    <tu>
      <tuv xml:lang="EN"><seg>Goodbye.</seg></tuv>
      <tuv xml:lang="fr"><seg>Au revoir.</seg></tuv>
    </tu>
  </body>
</tmx>`

func TestFromTMX(t *testing.T) {
	x, err := FromTMX(strings.NewReader(sampleTMX))
	require.NoError(t, err)

	assert.True(t, x.Contains("Hello world!"))
	assert.True(t, x.Contains("Goodbye."))
	assert.False(t, x.Contains("Hallo Welt!"))
	assert.False(t, x.Contains("Au revoir."))
	assert.Equal(t, 2, x.Len())
}

func TestFromTMXInlineMarkupSplitsTextNodes(t *testing.T) {
	doc := `<tmx><header srclang="en-US"/><body><tu>
<tuv xml:lang="en-us"><seg>Click <bpt i="1">&lt;b&gt;</bpt>Save<ept i="1">&lt;/b&gt;</ept> now.</seg></tuv>
</tu></body></tmx>`
	x, err := FromTMX(strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, x.Contains("Click "))
	assert.True(t, x.Contains("Save"))
	assert.True(t, x.Contains(" now."))
	assert.True(t, x.Contains("<b>"), "inline code content is a text node of the tuv")
	assert.False(t, x.Contains("Click Save now."))
}

func TestFromTMXHeaderAfterBody(t *testing.T) {
	doc := `<tmx><body><tu><tuv lang="en"><seg>Early</seg></tuv><tuv lang="es"><seg>Temprano</seg></tuv></tu></body><header srclang="en"/></tmx>`
	x, err := FromTMX(strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, x.Contains("Early"))
	assert.False(t, x.Contains("Temprano"))
}

func TestFromTMXMissingHeader(t *testing.T) {
	_, err := FromTMX(strings.NewReader(`<tmx><body><tu><tuv lang="en"><seg>Hi</seg></tuv></tu></body></tmx>`))
	assert.ErrorIs(t, err, apperrors.ErrMissingCorpusMetadata)
}

func TestFromTMXMissingSrclang(t *testing.T) {
	_, err := FromTMX(strings.NewReader(`<tmx><header datatype="plaintext"/><body/></tmx>`))
	assert.ErrorIs(t, err, apperrors.ErrMissingCorpusMetadata)
}

func TestFromTMXMalformed(t *testing.T) {
	_, err := FromTMX(strings.NewReader(`<tmx><header srclang="en"><body>`))
	assert.ErrorIs(t, err, apperrors.ErrMalformedMarkup)

	_, err = FromTMX(strings.NewReader("<tmx><header srclang=\"en\"/><body><tu><tuv lang=\"en\"><seg>\xff\xfe</seg></tuv></tu></body></tmx>"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidEncoding)
}

func TestSameLanguage(t *testing.T) {
	assert.True(t, sameLanguage("en", "EN"))
	assert.True(t, sameLanguage("en-US", "en-us"))
	assert.True(t, sameLanguage("pt_BR", "pt-BR"))
	assert.False(t, sameLanguage("en", "en-US"))
	assert.False(t, sameLanguage("en", "de"))
	assert.False(t, sameLanguage("", "en"))
}

func BenchmarkFromTMX(b *testing.B) {
	var sb strings.Builder
	sb.WriteString(`<tmx><header srclang="en"/><body>`)
	for i := 0; i < 2000; i++ {
		sb.WriteString(`<tu><tuv lang="en"><seg>Segment number `)
		sb.WriteString(strings.Repeat("x", i%17))
		sb.WriteString(`.</seg></tuv><tuv lang="de"><seg>Segment Nummer.</seg></tuv></tu>`)
	}
	sb.WriteString(`</body></tmx>`)
	doc := sb.String()

	b.ReportAllocs()
	b.SetBytes(int64(len(doc)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := FromTMX(strings.NewReader(doc)); err != nil {
			b.Fatal(err)
		}
	}
}
