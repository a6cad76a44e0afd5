package couchstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/gouchstore/gouchstore/internal/block"
)

// VBucketFile describes one persisted vBucket file discovered by
// ListPersistedVBuckets: the highest-revision <vbid>.couch.<rev> file
// found for that vbid.
type VBucketFile struct {
	VBucketID int
	Revision  int
	Path      string
	// HeaderValid reports whether a header could be found and
	// validated at open time. A false value does not fail the scan;
	// the warm-up scheduler decides whether it is fatal for that shard.
	HeaderValid bool
}

var vbucketFilePattern = regexp.MustCompile(`^(\d+)\.couch\.(\d+)$`)

// ListPersistedVBuckets scans dir for files named <vbid>.couch.<rev>,
// keeping only the highest revision found per vbid, and concurrently
// opportunistically validates each candidate's header via find_header.
// It implements only the discovery primitive; stale-revision cleanup and
// warm-up scheduling around it remain the vBucket layer's job.
func ListPersistedVBuckets(dir string) ([]VBucketFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("couchstore: reading %s: %w", dir, err)
	}

	latest := map[int]VBucketFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := vbucketFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		vbid, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rev, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		if existing, ok := latest[vbid]; !ok || rev > existing.Revision {
			latest[vbid] = VBucketFile{
				VBucketID: vbid,
				Revision:  rev,
				Path:      filepath.Join(dir, entry.Name()),
			}
		}
	}

	files := make([]VBucketFile, 0, len(latest))
	for _, f := range latest {
		files = append(files, f)
	}

	g, _ := errgroup.WithContext(context.Background())
	for i := range files {
		i := i
		g.Go(func() error {
			files[i].HeaderValid = probeHeader(files[i].Path)
			return nil
		})
	}
	_ = g.Wait()

	return files, nil
}

// probeHeader opens path read-only and attempts find_header, reporting
// only whether a valid header exists, not the header itself.
func probeHeader(path string) bool {
	bf, err := block.Open(path, block.OpenReadOnly)
	if err != nil {
		return false
	}
	defer bf.Close()

	if bf.Size() == 0 {
		return false
	}
	_, err = findHeader(bf, bf.Size()-2)
	return err == nil
}
