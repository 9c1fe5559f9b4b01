package carve

import (
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sscafiti/xtafrec/internal/xtaf"
)

const stride = 16

// Scanner sweeps a byte range of an image in parallel fixed-stride shards,
// recognizing resurrectable FATX directory entries and container magics.
// It is the performance-critical component of the pipeline; per-shard
// work shares nothing but the Discovery slice, appended to under a single
// mutex held only across one append.
type Scanner struct {
	Partition *xtaf.Partition
	Shards    int // number of parallel shards, default 8
	Progress  *progressbar.ProgressBar
}

// NewScanner builds a Scanner for p with the given shard count (a value
// <= 0 defaults to 8).
func NewScanner(p *xtaf.Partition, shards int) *Scanner {
	if shards <= 0 {
		shards = 8
	}
	return &Scanner{Partition: p, Shards: shards}
}

// Scan sweeps image[lo:hi) -- a range constrained to a single partition --
// and returns every Discovery found, excluding container-magic hits at
// offsets already named in liveOffsets (known live FATX entries). Cross-
// shard discovery order is unspecified; within one shard, probes at each
// position are evaluated in ascending offset order.
func (s *Scanner) Scan(image []byte, lo, hi uint64, liveOffsets map[uint64]struct{}) []Discovery {
	if hi > uint64(len(image)) {
		hi = uint64(len(image))
	}
	if lo >= hi {
		return nil
	}

	shardLen := (hi - lo) / uint64(s.Shards)
	if shardLen == 0 {
		shardLen = hi - lo
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []Discovery
	)

	for i := 0; i < s.Shards; i++ {
		shardLo := lo + uint64(i)*shardLen
		shardHi := shardLo + shardLen
		if i == s.Shards-1 || shardHi > hi {
			shardHi = hi
		}
		if shardLo >= shardHi {
			continue
		}

		// shard boundaries always snap down to a 16-byte stride, even if
		// shardLen or lo were not themselves 16-aligned.
		shardLo -= shardLo % stride

		wg.Add(1)
		go func(lo, hi uint64) {
			defer wg.Done()

			local := s.scanShard(image, lo, hi, liveOffsets)
			if len(local) == 0 {
				return
			}

			mu.Lock()
			results = append(results, local...)
			mu.Unlock()
		}(shardLo, shardHi)
	}

	wg.Wait()

	if s.Progress != nil {
		_ = s.Progress.Add64(int64(hi - lo))
	}
	return results
}

func (s *Scanner) scanShard(image []byte, lo, hi uint64, liveOffsets map[uint64]struct{}) []Discovery {
	var found []Discovery

	for p := lo; p+stride <= hi; p += stride {
		if d, ok := s.probeDeletedEntry(image, p); ok {
			found = append(found, d)
		}
		if d, ok := s.probeContainerMagic(image, p, liveOffsets); ok {
			found = append(found, d)
		}
	}
	return found
}

// probeDeletedEntry is Probe A: a plausible deleted FATX directory record.
func (s *Scanner) probeDeletedEntry(image []byte, p uint64) (Discovery, bool) {
	if p+xtaf.EntrySize > uint64(len(image)) {
		return Discovery{}, false
	}
	if image[p] != 0xE5 {
		return Discovery{}, false
	}

	attr := image[p+1]
	if attr != byte(xtaf.AttrNone) && attr != byte(xtaf.AttrDir) {
		return Discovery{}, false
	}

	entry, ok := s.Partition.ParseCarvedEntry(image, p)
	if !ok {
		return Discovery{}, false
	}
	return Discovery{Kind: KindFatxEntry, Offset: p, Entry: entry}, true
}

// probeContainerMagic is Probe B: a recognized container-format signature.
func (s *Scanner) probeContainerMagic(image []byte, p uint64, liveOffsets map[uint64]struct{}) (Discovery, bool) {
	if p+6 > uint64(len(image)) {
		return Discovery{}, false
	}

	var magic [4]byte
	copy(magic[:], image[p:p+4])

	kind, ok := matchContainerMagic(magic)
	if !ok {
		return Discovery{}, false
	}
	if rejectedTrailingByte(image[p+5]) {
		return Discovery{}, false
	}
	if _, known := liveOffsets[p]; known {
		return Discovery{}, false
	}
	return Discovery{Kind: kind, Offset: p}, true
}
