package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"
)

// Identity is the authenticated principal performing an upload.
// The zero value is the anonymous caller.
type Identity string

// Anonymous is the identity of an unauthenticated caller
const Anonymous Identity = ""

// IsAnonymous reports whether no principal was resolved
func (i Identity) IsAnonymous() bool {
	return strings.TrimSpace(string(i)) == ""
}

// Coordinate identifies a single package release.
type Coordinate struct {
	Group   string `json:"group"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// String renders the coordinate as group:name:version
func (c Coordinate) String() string {
	return c.Group + ":" + c.Name + ":" + c.Version
}

// Validate checks that all fields are present and free of path separators.
func (c Coordinate) Validate() error {
	if c.Group == "" || c.Name == "" || c.Version == "" {
		return fmt.Errorf("incomplete coordinate %q", c.String())
	}
	if strings.ContainsAny(c.Group, "/\\") {
		return fmt.Errorf("group %q must be dotted, not a path", c.Group)
	}
	if strings.ContainsAny(c.Name, "/\\") {
		return fmt.Errorf("name %q contains a path separator", c.Name)
	}
	if strings.ContainsAny(c.Version, "/\\") {
		return fmt.Errorf("version %q contains a path separator", c.Version)
	}
	return nil
}

// PackageURL returns the purl form, e.g. pkg:maven/org.acme/lib@1.0
func (c Coordinate) PackageURL() string {
	return packageurl.NewPackageURL(packageurl.TypeMaven, c.Group, c.Name, c.Version, nil, "").ToString()
}

// Dependency is a single <dependency> entry of a descriptor.
type Dependency struct {
	Group    string `json:"group"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Descriptor is a parsed package-metadata document. It carries the
// coordinate plus fields this package treats as opaque metadata.
type Descriptor struct {
	Coordinate

	Packaging    string       `json:"packaging,omitempty"`
	DisplayName  string       `json:"display_name,omitempty"`
	Description  string       `json:"description,omitempty"`
	URL          string       `json:"url,omitempty"`
	SCMURL       string       `json:"scm_url,omitempty"`
	Licenses     []string     `json:"licenses,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Parent       *Coordinate  `json:"parent,omitempty"`
}

// MergeOver layers the descriptor on top of a path-derived coordinate.
// Non-empty descriptor fields win.
func (d Descriptor) MergeOver(base Coordinate) Descriptor {
	merged := d
	merged.Coordinate = base
	if d.Group != "" {
		merged.Group = d.Group
	}
	if d.Name != "" {
		merged.Name = d.Name
	}
	if d.Version != "" {
		merged.Version = d.Version
	}
	return merged
}

// IndexEntry is one row of the coordinate index.
type IndexEntry struct {
	ID         uuid.UUID  `json:"id"`
	Descriptor Descriptor `json:"descriptor"`
	PackageURL string     `json:"purl"`
	CreatedBy  Identity   `json:"created_by"`
	UpdatedBy  Identity   `json:"updated_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Coordinate returns the coordinate the entry is keyed on
func (e *IndexEntry) Coordinate() Coordinate {
	return e.Descriptor.Coordinate
}

// UpsertMode selects what an upsert does when the coordinate already exists.
type UpsertMode int

const (
	// UpsertKeep leaves an existing entry untouched
	UpsertKeep UpsertMode = iota
	// UpsertRefresh replaces descriptor fields of an existing entry
	UpsertRefresh
)

func (m UpsertMode) String() string {
	switch m {
	case UpsertKeep:
		return "keep"
	case UpsertRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// PromotionTask is handed to the promotion pipeline after a successful
// upload. It is a copy; nothing in this package reads it after enqueue.
type PromotionTask struct {
	ID         uuid.UUID   `json:"id"`
	Coordinate Coordinate  `json:"coordinate"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
	Filename   string      `json:"filename"`
	Uploader   Identity    `json:"uploader"`
	PackageURL string      `json:"purl"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}
