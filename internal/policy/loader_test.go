package policy

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Правила агентства</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">1. Комиссия </w:t></w:r><w:r><w:t>50%</w:t></w:r></w:p>
    <w:p><w:r><w:t>   </w:t></w:r></w:p>
    <w:p/>
    <w:p><w:r><w:t>2.</w:t><w:tab/><w:t>Штраф за опоздание</w:t></w:r></w:p>
  </w:body>
</w:document>`

func writeDocx(t *testing.T, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.docx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestReadDocx(t *testing.T) {
	path := writeDocx(t, map[string]string{
		"[Content_Types].xml": "<Types/>",
		documentPart:          testDocument,
	})

	text, err := ReadDocx(path)
	require.NoError(t, err)
	assert.Equal(t, "Правила агентства\n1. Комиссия 50%\n2.\tШтраф за опоздание", text)
	assert.Equal(t, text, Load(path, nil))
}

func TestLoad_Missing(t *testing.T) {
	assert.Empty(t, Load(filepath.Join(t.TempDir(), "nope.docx"), nil))
	assert.Empty(t, Load("", nil))
}

func TestLoad_Broken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	assert.Empty(t, Load(path, nil))

	noDoc := writeDocx(t, map[string]string{"other.xml": "<x/>"})
	_, err := ReadDocx(noDoc)
	assert.Error(t, err)

	badXML := writeDocx(t, map[string]string{documentPart: "<w:document><w:p>"})
	_, err = ReadDocx(badXML)
	assert.Error(t, err)
}
