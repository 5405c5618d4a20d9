package ingest

import (
	"context"
	"io"
)

// Service defines the upload operations of the repository
type Service interface {
	// PutArtifact handles group/artifact/version/filename uploads
	PutArtifact(ctx context.Context, who Identity, p *UploadPath, body io.Reader) error

	// PutMetadata handles group/artifact/maven-metadata.xml* uploads
	PutMetadata(ctx context.Context, who Identity, p *UploadPath, body io.Reader) error

	// FindCoordinate returns the index entry for c
	FindCoordinate(ctx context.Context, c Coordinate) (*IndexEntry, error)
}
