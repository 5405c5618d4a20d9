package ingest

import (
	"fmt"
	"path"
	"strings"
)

// MetadataFilePrefix starts every group/artifact level metadata file name.
// Checksum and signature variants append a suffix.
const MetadataFilePrefix = "maven-metadata.xml"

// WriteKind is the shape of an upload request
type WriteKind int

const (
	WriteKindUnknown WriteKind = iota
	// WriteKindMetadata is group/artifact/maven-metadata.xml[suffix]
	WriteKindMetadata
	// WriteKindArtifact is group/artifact/version/filename
	WriteKindArtifact
)

func (k WriteKind) String() string {
	switch k {
	case WriteKindMetadata:
		return "metadata"
	case WriteKindArtifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// FileKind classifies the uploaded file by extension
type FileKind int

const (
	FileKindUnknown FileKind = iota
	FileKindMetadata
	FileKindBinary
	FileKindDescriptor
	FileKindChecksum
	FileKindSignature
)

func (k FileKind) String() string {
	switch k {
	case FileKindMetadata:
		return "metadata"
	case FileKindBinary:
		return "binary"
	case FileKindDescriptor:
		return "descriptor"
	case FileKindChecksum:
		return "checksum"
	case FileKindSignature:
		return "signature"
	default:
		return "unknown"
	}
}

var artifactExtensions = []struct {
	ext  string
	kind FileKind
}{
	{".jar", FileKindBinary},
	{".pom", FileKindDescriptor},
	{".sha1", FileKindChecksum},
	{".asc", FileKindSignature},
}

// UploadPath holds the parsed components of an upload path.
// Group keeps the wire form with slashes; use Coordinate for the dotted form.
type UploadPath struct {
	Kind     WriteKind
	FileKind FileKind
	Group    string
	Name     string
	Version  string // empty for metadata writes
	Filename string
}

// NormalizedGroup returns the group with slashes replaced by dots
func (p *UploadPath) NormalizedGroup() string {
	return NormalizeGroup(p.Group)
}

// Coordinate returns the path-derived coordinate
func (p *UploadPath) Coordinate() Coordinate {
	return Coordinate{
		Group:   p.NormalizedGroup(),
		Name:    p.Name,
		Version: p.Version,
	}
}

// StorageKey returns the slash separated key under the storage root:
// group/name/[version/]filename
func (p *UploadPath) StorageKey() string {
	if p.Kind == WriteKindMetadata {
		return path.Join(p.Group, p.Name, p.Filename)
	}
	return path.Join(p.Group, p.Name, p.Version, p.Filename)
}

func (p *UploadPath) String() string {
	return p.StorageKey()
}

// NormalizeGroup converts a wire group (org/acme) to its dotted form (org.acme)
func NormalizeGroup(group string) string {
	return strings.ReplaceAll(strings.Trim(group, "/"), "/", ".")
}

// ClassifyPath parses a request path into an UploadPath. Paths that are
// neither metadata nor versioned-artifact writes return ErrPathRejected.
func ClassifyPath(p string) (*UploadPath, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil, fmt.Errorf("%w: empty path", ErrPathRejected)
	}

	parts := strings.Split(p, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return nil, fmt.Errorf("%w: invalid segment in %q", ErrPathRejected, p)
		}
		if strings.Contains(part, "\\") {
			return nil, fmt.Errorf("%w: backslash in %q", ErrPathRejected, p)
		}
	}
	n := len(parts)

	// group/artifact/maven-metadata.xml*, group may span segments
	if n >= 3 && strings.HasPrefix(parts[n-1], MetadataFilePrefix) {
		return &UploadPath{
			Kind:     WriteKindMetadata,
			FileKind: FileKindMetadata,
			Group:    strings.Join(parts[:n-2], "/"),
			Name:     parts[n-2],
			Filename: parts[n-1],
		}, nil
	}

	if n < 4 {
		return nil, fmt.Errorf("%w: %q is not group/artifact/version/file", ErrPathRejected, p)
	}
	if strings.HasPrefix(parts[0], ".") {
		return nil, fmt.Errorf("%w: group %q starts with an extension boundary", ErrPathRejected, parts[0])
	}

	filename := parts[n-1]
	kind := FileKindUnknown
	for _, e := range artifactExtensions {
		if len(filename) > len(e.ext) && strings.HasSuffix(filename, e.ext) {
			kind = e.kind
			break
		}
	}
	if kind == FileKindUnknown {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrPathRejected, filename)
	}

	return &UploadPath{
		Kind:     WriteKindArtifact,
		FileKind: kind,
		Group:    strings.Join(parts[:n-3], "/"),
		Name:     parts[n-3],
		Version:  parts[n-2],
		Filename: filename,
	}, nil
}
