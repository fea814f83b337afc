// Package storage provides content-addressable storage for release artifacts.
package storage

import (
	"context"
	"time"
)

// ObjectStore provides content-addressable storage for distribution files.
// Objects are stored by their content hash, so re-running a build that
// produces byte-identical distributions deduplicates automatically.
type ObjectStore interface {
	// Put stores an object and returns its content hash.
	// If the object already exists, it returns the existing hash without writing.
	Put(ctx context.Context, obj *Object) (hash string, err error)

	// Get retrieves an object by its content hash.
	// Returns ErrNotFound if the object doesn't exist.
	Get(ctx context.Context, hash string) (*Object, error)

	// Exists checks if an object with the given hash exists.
	Exists(ctx context.Context, hash string) (bool, error)

	// Delete removes an object by its content hash.
	// Returns ErrNotFound if the object doesn't exist.
	Delete(ctx context.Context, hash string) error

	// List returns all object hashes matching the given type filter.
	// If objectType is empty, returns all objects.
	List(ctx context.Context, objectType ObjectType) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// BundleStore groups stored objects into named per-release bundles. The
// bundle named "dist" is the hand-off between the build and publish jobs.
type BundleStore interface {
	ObjectStore

	// AddBundleRef associates a release ID and bundle name with object hashes.
	AddBundleRef(releaseID, bundle string, hashes []string) error

	// GetBundleRef retrieves the object hashes for a release's bundle.
	// A missing ref yields a nil slice and no error.
	GetBundleRef(releaseID, bundle string) ([]string, error)
}

// DistBundle is the conventional bundle name for built distributions.
const DistBundle = "dist"

// Object represents a stored artifact with its metadata.
type Object struct {
	// Hash is the content hash (SHA256) of the data.
	Hash string

	// Type identifies the kind of object.
	Type ObjectType

	// Size is the size of the data in bytes.
	Size int64

	// Data is the object content.
	Data []byte

	// Metadata stores additional key-value pairs.
	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	// CreatedAt is when the object was first stored.
	CreatedAt time.Time

	// LastAccessed is when the object was last retrieved.
	LastAccessed time.Time

	// RefCount tracks how many releases reference this object.
	// Used for garbage collection.
	RefCount int

	// Custom allows storage-specific metadata (original filename, version...).
	Custom map[string]string
}

// Custom metadata keys used by the pipeline.
const (
	MetaFilename = "filename"
	MetaProject  = "project"
	MetaVersion  = "version"
)

// ObjectType identifies the kind of stored object.
type ObjectType string

const (
	// ObjectTypeSdist is a source distribution archive.
	ObjectTypeSdist ObjectType = "sdist"

	// ObjectTypeWheel is a prebuilt wheel distribution.
	ObjectTypeWheel ObjectType = "wheel"

	// ObjectTypeManifest is a release manifest describing a bundle.
	ObjectTypeManifest ObjectType = "manifest"
)

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Hash
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
