package entity

import "sort"

// Merge combines one local and one remote version of a record into the
// authoritative version, last-write-wins by ClientUpdatedAt.
//
// Either side may be nil (absent); passing both sides nil is a caller
// contract violation and returns nil. Ties are resolved in favor of the
// remote record. This is a whole-record rule: concurrent edits with equal
// timestamps silently lose the local version, an accepted tradeoff of the
// scalar-timestamp protocol.
func Merge[T any, PT interface {
	Record
	*T
}](local, remote PT) PT {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	if remote.Meta().ClientUpdatedAt.Before(local.Meta().ClientUpdatedAt) {
		return local
	}
	return remote
}

// MergeSets computes the presented view for a scope: records from the local
// and remote snapshots are paired by id, merged with Merge, tombstones are
// dropped, and the remainder is optionally ordered by ClientCreatedAt
// ascending (chat messages; other kinds keep caller order).
func MergeSets[T any, PT interface {
	Record
	*T
}](local, remote []PT, byCreatedAt bool) []PT {
	remoteByID := make(map[string]PT, len(remote))
	for _, r := range remote {
		remoteByID[r.Meta().ID] = r
	}

	seen := make(map[string]struct{}, len(local))
	out := make([]PT, 0, len(local)+len(remote))
	for _, l := range local {
		id := l.Meta().ID
		seen[id] = struct{}{}
		merged := Merge[T, PT](l, remoteByID[id])
		if !merged.Meta().Deleted {
			out = append(out, merged)
		}
	}
	for _, r := range remote {
		if _, ok := seen[r.Meta().ID]; ok {
			continue
		}
		if !r.Meta().Deleted {
			out = append(out, r)
		}
	}

	if byCreatedAt {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Meta().ClientCreatedAt.Before(out[j].Meta().ClientCreatedAt)
		})
	}
	return out
}
