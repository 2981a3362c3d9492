package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsDocumentOrder(t *testing.T) {
	doc := `
zlib = ["compress_fuzzer", "zlib_uncompress_fuzzer"]
libpng = ["libpng_read_fuzzer"]
abseil = []
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, m.Projects, 3)

	assert.Equal(t, "zlib", m.Projects[0].Name)
	assert.Equal(t, []string{"compress_fuzzer", "zlib_uncompress_fuzzer"}, m.Projects[0].Targets)
	assert.Equal(t, "libpng", m.Projects[1].Name)
	assert.Equal(t, "abseil", m.Projects[2].Name)
	assert.Empty(t, m.Projects[2].Targets)
	assert.Equal(t, 3, m.TargetCount())
}

func TestParseEmptyDocument(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Projects)
	assert.Zero(t, m.TargetCount())
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `zlib = ["compress_fuzzer"`},
		{"not a list", `zlib = "compress_fuzzer"`},
		{"table", "[zlib]\ntargets = [\"compress_fuzzer\"]"},
		{"mixed types", `zlib = ["compress_fuzzer", 3]`},
		{"empty target", `zlib = ["compress_fuzzer", ""]`},
		{"empty project", `"" = ["compress_fuzzer"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var me *Error
			assert.True(t, errors.As(err, &me), "expected *manifest.Error, got %T", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpora.toml")
	require.NoError(t, os.WriteFile(path, []byte(`proj = ["fuzzer_a", "proj_fuzzer_b"]`), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Projects, 1)
	assert.Equal(t, []string{"fuzzer_a", "proj_fuzzer_b"}, m.Projects[0].Targets)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/corpora.toml")
	require.Error(t, err)

	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "/nonexistent/corpora.toml", me.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadMalformedReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("proj = [oops"), 0644))

	_, err := Load(path)
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, path, me.Path)
	assert.Contains(t, err.Error(), path)
}
