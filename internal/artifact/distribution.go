// Package artifact models the distribution files a release build produces.
package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
)

// Kind identifies the distribution format.
type Kind string

const (
	// KindSdist is a source distribution archive (.tar.gz).
	KindSdist Kind = "sdist"
	// KindWheel is a prebuilt binary distribution (.whl, PEP 427).
	KindWheel Kind = "wheel"
)

// Distribution is a single build artifact file destined for a package index.
type Distribution struct {
	// File is the filename or path as given, e.g. "dist/pyerrors-2.11.1.tar.gz".
	File string
	// Project is the normalized project name extracted from the filename.
	Project string
	// Version is the version string extracted from the filename.
	Version string
	Kind    Kind
	// PyVersion is the python tag for wheels ("py3", "cp312") and "source"
	// for sdists, as expected by index upload APIs.
	PyVersion string
	// Size is the file size in bytes.
	Size int64
	// SHA256 is the hex content digest, filled in when the file is read.
	SHA256 string
}

var (
	sdistPattern = regexp.MustCompile(`^(?P<name>.+)-(?P<version>[0-9][^-]*)\.tar\.gz$`)
	// PEP 427: {distribution}-{version}(-{build tag})?-{python}-{abi}-{platform}.whl
	wheelPattern = regexp.MustCompile(`^(?P<name>[^-]+(?:_[^-]+)*)-(?P<version>[^-]+)(?:-(?P<build>\d[^-]*))?-(?P<python>[^-]+)-(?P<abi>[^-]+)-(?P<platform>[^-]+)\.whl$`)
)

// ParseFilename classifies a dist-directory entry. Files that are neither an
// sdist nor a wheel yield an artifact error so stray build outputs surface
// instead of being silently uploaded.
func ParseFilename(filename string) (*Distribution, error) {
	base := filepath.Base(filename)
	switch {
	case strings.HasSuffix(base, ".tar.gz"):
		m := sdistPattern.FindStringSubmatch(base)
		if m == nil {
			return nil, ferrors.ArtifactError("unparseable sdist filename").
				WithContext("file", filename).
				Build()
		}
		return &Distribution{
			File:      filename,
			Project:   NormalizeName(m[1]),
			Version:   m[2],
			Kind:      KindSdist,
			PyVersion: "source",
		}, nil
	case strings.HasSuffix(base, ".whl"):
		m := wheelPattern.FindStringSubmatch(base)
		if m == nil {
			return nil, ferrors.ArtifactError("unparseable wheel filename").
				WithContext("file", filename).
				Build()
		}
		return &Distribution{
			File:      filename,
			Project:   NormalizeName(m[1]),
			Version:   m[2],
			Kind:      KindWheel,
			PyVersion: m[4],
		}, nil
	default:
		return nil, ferrors.ArtifactError("unrecognized distribution type").
			WithContext("file", filename).
			Build()
	}
}

// NormalizeName applies index-side project name normalization (PEP 503):
// NFKC normalization, lowercasing, and collapsing runs of "-", "_" and "."
// into a single dash. Two names that normalize equally refer to the same
// project on the index.
func NormalizeName(name string) string {
	name = norm.NFKC.String(name)
	name = strings.ToLower(name)
	return nameSeparators.ReplaceAllString(name, "-")
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

func (d *Distribution) String() string {
	return fmt.Sprintf("%s %s (%s)", d.Project, d.Version, d.Kind)
}

// SameRelease reports whether two distributions belong to the same
// project+version release.
func (d *Distribution) SameRelease(other *Distribution) bool {
	return d.Project == other.Project && d.Version == other.Version
}
