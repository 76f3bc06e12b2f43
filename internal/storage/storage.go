// Package storage is the blob store for job assets: uploaded images,
// intermediate meshes and export artifacts. Keys are "jobID/assetName";
// the returned refs are the keys themselves, resolvable by any backend.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	// Put writes the blob and returns its ref.
	Put(ctx context.Context, jobID, asset string, r io.Reader) (string, error)
	// Open returns a reader for a ref previously returned by Put.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Size returns the byte length of a stored blob.
	Size(ctx context.Context, ref string) (int64, error)
}

// Key builds the canonical blob key for a job asset.
func Key(jobID, asset string) string { return jobID + "/" + asset }
