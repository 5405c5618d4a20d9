// Package pom parses Maven project descriptors into ingest.Descriptor values.
package pom

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/tendant/simple-repository/pkg/ingest"
)

type project struct {
	XMLName      xml.Name     `xml:"project"`
	GroupID      string       `xml:"groupId"`
	ArtifactID   string       `xml:"artifactId"`
	Version      string       `xml:"version"`
	Packaging    string       `xml:"packaging"`
	Name         string       `xml:"name"`
	Description  string       `xml:"description"`
	URL          string       `xml:"url"`
	Parent       *parent      `xml:"parent"`
	Licenses     []license    `xml:"licenses>license"`
	SCM          scm          `xml:"scm"`
	Dependencies []dependency `xml:"dependencies>dependency"`
}

type parent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type license struct {
	Name string `xml:"name"`
	URL  string `xml:"url"`
}

type scm struct {
	URL        string `xml:"url"`
	Connection string `xml:"connection"`
}

type dependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

// Parser implements ingest.DescriptorParser for pom.xml documents
type Parser struct{}

// NewParser creates a POM parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a POM. groupId and version fall back to the <parent>
// element. A document missing any coordinate field is malformed.
func (p *Parser) Parse(r io.Reader) (*ingest.Descriptor, error) {
	var proj project
	dec := xml.NewDecoder(r)
	dec.Strict = true
	if err := dec.Decode(&proj); err != nil {
		return nil, fmt.Errorf("%w: %v", ingest.ErrDescriptorMalformed, err)
	}

	groupID := strings.TrimSpace(proj.GroupID)
	version := strings.TrimSpace(proj.Version)
	var parentCoord *ingest.Coordinate
	if proj.Parent != nil {
		parentCoord = &ingest.Coordinate{
			Group:   strings.TrimSpace(proj.Parent.GroupID),
			Name:    strings.TrimSpace(proj.Parent.ArtifactID),
			Version: strings.TrimSpace(proj.Parent.Version),
		}
		if groupID == "" {
			groupID = parentCoord.Group
		}
		if version == "" {
			version = parentCoord.Version
		}
	}

	coord := ingest.Coordinate{
		Group:   groupID,
		Name:    strings.TrimSpace(proj.ArtifactID),
		Version: version,
	}
	if err := coord.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ingest.ErrDescriptorMalformed, err)
	}

	props := map[string]string{
		"project.groupId":    coord.Group,
		"project.artifactId": coord.Name,
		"project.version":    coord.Version,
		"pom.version":        coord.Version,
	}
	if parentCoord != nil {
		props["project.parent.groupId"] = parentCoord.Group
		props["project.parent.version"] = parentCoord.Version
	}

	desc := &ingest.Descriptor{
		Coordinate:  coord,
		Packaging:   strings.TrimSpace(proj.Packaging),
		DisplayName: strings.TrimSpace(proj.Name),
		Description: strings.TrimSpace(proj.Description),
		URL:         strings.TrimSpace(proj.URL),
		SCMURL:      strings.TrimSpace(proj.SCM.URL),
		Parent:      parentCoord,
	}
	if desc.Packaging == "" {
		desc.Packaging = "jar"
	}
	for _, l := range proj.Licenses {
		if name := strings.TrimSpace(l.Name); name != "" {
			desc.Licenses = append(desc.Licenses, name)
		}
	}
	for _, d := range proj.Dependencies {
		desc.Dependencies = append(desc.Dependencies, ingest.Dependency{
			Group:    interpolate(strings.TrimSpace(d.GroupID), props),
			Name:     strings.TrimSpace(d.ArtifactID),
			Version:  interpolate(strings.TrimSpace(d.Version), props),
			Scope:    strings.TrimSpace(d.Scope),
			Optional: strings.TrimSpace(d.Optional) == "true",
		})
	}

	return desc, nil
}

// interpolate expands ${name} references found in props; unknown
// references are left as written.
func interpolate(s string, props map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start
		b.WriteString(s[:start])
		if v, ok := props[s[start+2:end]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
}
