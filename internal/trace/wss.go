package trace

import simerr "github.com/cachesim/cachesim/pkg/errors"

// WorkingSetSize computes the working-set size (spec GLOSSARY): the count
// and total bytes of distinct obj_ids observed over the full trace.
// Grounded on libCacheSim's cal_working_set_size (bin/cli_reader_utils.c):
// a full forward scan over a cloned reader, so the caller's own read
// position is undisturbed.
func WorkingSetSize(r *Reader) (objects int64, bytes int64, err error) {
	clone, err := r.Clone()
	if err != nil {
		return 0, 0, err
	}
	defer clone.Close()

	if err := clone.Reset(); err != nil {
		return 0, 0, err
	}

	seen := make(map[uint64]int64)
	for {
		req, err := clone.ReadOne()
		if err != nil {
			if simerr.IsEndOfStream(err) {
				break
			}
			return 0, 0, err
		}
		if _, ok := seen[req.ObjID]; !ok {
			seen[req.ObjID] = req.ObjSize
		}
	}

	var totalBytes int64
	for _, size := range seen {
		totalBytes += size
	}
	return int64(len(seen)), totalBytes, nil
}
