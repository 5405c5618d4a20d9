package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-repository/pkg/ingest"
)

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		kind     ingest.WriteKind
		fileKind ingest.FileKind
		coord    ingest.Coordinate
		key      string
	}{
		{
			name:     "metadata checksum",
			path:     "/acme/lib/maven-metadata.xml.sha1",
			kind:     ingest.WriteKindMetadata,
			fileKind: ingest.FileKindMetadata,
			coord:    ingest.Coordinate{Group: "acme", Name: "lib"},
			key:      "acme/lib/maven-metadata.xml.sha1",
		},
		{
			name:     "metadata nested group",
			path:     "org/acme/tools/cli/maven-metadata.xml",
			kind:     ingest.WriteKindMetadata,
			fileKind: ingest.FileKindMetadata,
			coord:    ingest.Coordinate{Group: "org.acme.tools", Name: "cli"},
			key:      "org/acme/tools/cli/maven-metadata.xml",
		},
		{
			name:     "dotted group descriptor",
			path:     "/acme.lib/lib/1.0/lib.pom",
			kind:     ingest.WriteKindArtifact,
			fileKind: ingest.FileKindDescriptor,
			coord:    ingest.Coordinate{Group: "acme.lib", Name: "lib", Version: "1.0"},
			key:      "acme.lib/lib/1.0/lib.pom",
		},
		{
			name:     "slashed group binary",
			path:     "/org/acme/lib/1.0/lib-1.0.jar",
			kind:     ingest.WriteKindArtifact,
			fileKind: ingest.FileKindBinary,
			coord:    ingest.Coordinate{Group: "org.acme", Name: "lib", Version: "1.0"},
			key:      "org/acme/lib/1.0/lib-1.0.jar",
		},
		{
			name:     "checksum",
			path:     "/acme/lib/1.0/lib-1.0.jar.sha1",
			kind:     ingest.WriteKindArtifact,
			fileKind: ingest.FileKindChecksum,
			coord:    ingest.Coordinate{Group: "acme", Name: "lib", Version: "1.0"},
			key:      "acme/lib/1.0/lib-1.0.jar.sha1",
		},
		{
			name:     "signature",
			path:     "/acme/lib/1.0/lib-1.0.pom.asc",
			kind:     ingest.WriteKindArtifact,
			fileKind: ingest.FileKindSignature,
			coord:    ingest.Coordinate{Group: "acme", Name: "lib", Version: "1.0"},
			key:      "acme/lib/1.0/lib-1.0.pom.asc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ingest.ClassifyPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.fileKind, p.FileKind)
			assert.Equal(t, tt.coord, p.Coordinate())
			assert.Equal(t, tt.key, p.StorageKey())
		})
	}
}

func TestClassifyPath_Rejected(t *testing.T) {
	paths := []string{
		"",
		"/",
		"/acme/lib/1.0/lib.exe",
		"/acme/lib/1.0/.jar",
		"/acme/lib.jar",
		"/lib/1.0/lib.jar",
		"/.hidden/lib/1.0/lib.jar",
		"/acme/../lib/1.0/lib.jar",
		"/acme/./lib/1.0/lib.jar",
		"/acme//lib/1.0/lib.jar",
		"/acme/lib/1.0/lib.jar/",
		"/acme\\evil/lib/1.0/lib.jar",
		"/lib/maven-metadata.xml",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := ingest.ClassifyPath(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ingest.ErrPathRejected)
		})
	}
}

func TestNormalizeGroup(t *testing.T) {
	assert.Equal(t, "org.acme.tools", ingest.NormalizeGroup("org/acme/tools"))
	assert.Equal(t, "acme.lib", ingest.NormalizeGroup("acme.lib"))
	assert.Equal(t, "org.acme", ingest.NormalizeGroup("/org/acme/"))
}

func TestCoordinate(t *testing.T) {
	c := ingest.Coordinate{Group: "org.acme", Name: "lib", Version: "1.0"}
	assert.Equal(t, "org.acme:lib:1.0", c.String())
	assert.Equal(t, "pkg:maven/org.acme/lib@1.0", c.PackageURL())
	assert.NoError(t, c.Validate())

	assert.Error(t, ingest.Coordinate{Group: "org.acme", Name: "lib"}.Validate())
	assert.Error(t, ingest.Coordinate{Group: "org/acme", Name: "lib", Version: "1"}.Validate())
	assert.Error(t, ingest.Coordinate{Group: "org.acme", Name: "lib", Version: "1/2"}.Validate())
}

func TestDescriptorMergeOver(t *testing.T) {
	base := ingest.Coordinate{Group: "acme", Name: "lib", Version: "1.0"}

	d := ingest.Descriptor{Coordinate: ingest.Coordinate{Version: "1.0-fixed"}, Description: "x"}
	merged := d.MergeOver(base)
	assert.Equal(t, ingest.Coordinate{Group: "acme", Name: "lib", Version: "1.0-fixed"}, merged.Coordinate)
	assert.Equal(t, "x", merged.Description)
}
