package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		project, target, want string
	}{
		{"proj", "fuzzer_a", "proj_fuzzer_a"},
		{"proj", "proj_fuzzer_a", "proj_fuzzer_a"},
		{"proj", "project_fuzzer", "proj_project_fuzzer"},
		{"proj", "proj", "proj_proj"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.project, tt.target), "Normalize(%q, %q)", tt.project, tt.target)
	}
}

func TestURL(t *testing.T) {
	l := Default()
	want := "https://storage.googleapis.com/proj-backup.clusterfuzz-external.appspot.com/corpus/libFuzzer/proj_fuzzer_a/public.zip"

	assert.Equal(t, want, l.URL("proj", "fuzzer_a"))
	assert.Equal(t, want, l.URL("proj", "proj_fuzzer_a"))

	l.Scheme = SchemeCombined
	assert.Equal(t, want, l.URL("proj", "fuzzer_a"))
	assert.Equal(t, want, l.URL("proj", "proj_fuzzer_a"))
}

func TestURLCustomBase(t *testing.T) {
	l := Layout{BaseURL: "http://127.0.0.1:8080/", BucketSuffix: "example.test"}
	assert.Equal(t,
		"http://127.0.0.1:8080/zlib-backup.example.test/corpus/libFuzzer/zlib_compress_fuzzer/public.zip",
		l.URL("zlib", "compress_fuzzer"))
}

func TestKey(t *testing.T) {
	target := Layout{Scheme: SchemeTarget}
	assert.Equal(t, "proj/proj_fuzzer_a-corpus.zip", target.Key("proj", "fuzzer_a"))
	assert.Equal(t, "proj/proj_fuzzer_a-corpus.zip", target.Key("proj", "proj_fuzzer_a"))

	combined := Layout{Scheme: SchemeCombined}
	assert.Equal(t, "proj/proj-fuzzer_a-corpus.zip", combined.Key("proj", "fuzzer_a"))
	assert.Equal(t, "proj/proj-fuzzer_a-corpus.zip", combined.Key("proj", "proj_fuzzer_a"))
}

func TestKeysAreDisjointPerProject(t *testing.T) {
	l := Default()
	a := l.Key("a", "x")
	b := l.Key("b", "x")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "a/", a[:2])
	assert.Equal(t, "b/", b[:2])
}

func TestLabel(t *testing.T) {
	l := Default()
	assert.Equal(t, "proj_fuzzer_a", l.Label("proj", "fuzzer_a"))
	assert.Equal(t, "proj_fuzzer_a", l.Label("proj", "proj_fuzzer_a"))
	assert.Equal(t, "libpng_read_fuzzer", l.Label("libpng", "libpng_read_fuzzer"))

	l.Scheme = SchemeCombined
	assert.Equal(t, "proj-fuzzer_a", l.Label("proj", "fuzzer_a"))
	assert.Equal(t, "proj-fuzzer_a", l.Label("proj", "proj_fuzzer_a"))
}

func TestLabelMatchesKey(t *testing.T) {
	for _, scheme := range []Scheme{SchemeTarget, SchemeCombined} {
		l := Layout{Scheme: scheme}
		for _, target := range []string{"fuzzer_a", "proj_fuzzer_a"} {
			assert.Equal(t, "proj/"+l.Label("proj", target)+"-corpus.zip", l.Key("proj", target))
		}
	}
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeTarget, s)

	s, err = ParseScheme("combined")
	require.NoError(t, err)
	assert.Equal(t, SchemeCombined, s)

	_, err = ParseScheme("flat")
	assert.Error(t, err)
}
