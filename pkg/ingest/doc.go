// Package ingest implements the write side of a Maven-layout package
// repository.
//
// An upload is classified by ClassifyPath, authorized against the target
// group, optionally parsed as a descriptor (POM), persisted through a
// ContentStore, recorded in a CoordinateIndex and finally handed to the
// promotion pipeline through a Queue. Storage backends (filesystem, S3,
// memory) and index implementations (memory, Postgres) live in subpackages.
//
// # Write Sequence
//
// Descriptor uploads are parsed in full before any byte reaches storage, so a
// malformed POM leaves neither a file nor an index row behind. Other artifacts
// are stored first and only create a bare index row when the coordinate has
// not been seen before. Every successful upload produces exactly one
// PromotionTask.
package ingest
