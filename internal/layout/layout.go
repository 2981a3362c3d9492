// Package layout maps (project, target) pairs to remote corpus URLs and
// artifact keys.
package layout

import (
	"fmt"
	"strings"
)

// Defaults for the public OSS-Fuzz backup buckets.
const (
	DefaultBaseURL      = "https://storage.googleapis.com"
	DefaultBucketSuffix = "clusterfuzz-external.appspot.com"
)

// Scheme selects how URLs and artifact keys are built. One scheme is used
// for a whole run.
type Scheme string

const (
	// SchemeTarget keys both the URL and the artifact by the normalized
	// target name: {project}/{project}_{target}-corpus.zip.
	SchemeTarget Scheme = "target"

	// SchemeCombined is the older layout: {project}/{project}-{target}-corpus.zip.
	SchemeCombined Scheme = "combined"
)

// ParseScheme parses a scheme name. The empty string selects SchemeTarget.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemeTarget:
		return SchemeTarget, nil
	case SchemeCombined:
		return SchemeCombined, nil
	default:
		return "", fmt.Errorf("layout: unknown scheme %q (want %q or %q)", s, SchemeTarget, SchemeCombined)
	}
}

// Normalize returns target prefixed with "{project}_" unless it already is.
func Normalize(project, target string) string {
	if strings.HasPrefix(target, project+"_") {
		return target
	}
	return project + "_" + target
}

// bare strips the "{project}_" prefix from target, if present.
func bare(project, target string) string {
	return strings.TrimPrefix(target, project+"_")
}

// Layout builds URLs and keys for one run.
type Layout struct {
	BaseURL      string
	BucketSuffix string
	Scheme       Scheme
}

// Default returns the layout for the public OSS-Fuzz buckets.
func Default() Layout {
	return Layout{
		BaseURL:      DefaultBaseURL,
		BucketSuffix: DefaultBucketSuffix,
		Scheme:       SchemeTarget,
	}
}

// URL returns the public.zip URL for the target.
func (l Layout) URL(project, target string) string {
	base := strings.TrimSuffix(l.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	suffix := l.BucketSuffix
	if suffix == "" {
		suffix = DefaultBucketSuffix
	}

	// Both schemes resolve to the normalized name remotely; the bucket
	// stores every corpus under {project}_{target}.
	return fmt.Sprintf("%s/%s-backup.%s/corpus/libFuzzer/%s/public.zip",
		base, project, suffix, Normalize(project, target))
}

// Key returns the artifact key, relative to the mirror root. Keys always
// use forward slashes.
func (l Layout) Key(project, target string) string {
	if l.Scheme == SchemeCombined {
		return fmt.Sprintf("%s/%s-%s-corpus.zip", project, project, bare(project, target))
	}
	return fmt.Sprintf("%s/%s-corpus.zip", project, Normalize(project, target))
}

// Label is the name used in logs and progress output. It matches the
// artifact file name without the "-corpus.zip" suffix.
func (l Layout) Label(project, target string) string {
	if l.Scheme == SchemeCombined {
		return project + "-" + bare(project, target)
	}
	return Normalize(project, target)
}
