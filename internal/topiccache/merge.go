package topiccache

import (
	"github.com/kumarlokesh/headcache/internal/consumer"
	"github.com/kumarlokesh/headcache/internal/model"
)

// buildCandidate groups one poll batch's records by partition and folds
// each aggregate's actions into a candidate PartitionEntry. An Entry is
// only emitted for aggregates whose folded JournalInfo is NonEmpty; the
// partition's own offset tracks the max record offset seen regardless of
// action type. It also returns the earliest record timestamp in the batch
// (as Unix nanoseconds), used for the delivery latency metric.
func buildCandidate(batch map[model.Partition][]consumer.Record) (map[model.Partition]model.PartitionEntry, int64) {
	candidate := make(map[model.Partition]model.PartitionEntry, len(batch))
	var firstTimestampUnixNano int64

	for partition, records := range batch {
		byID := make(map[model.AggregateId][]model.JournalAction)
		actionOffset := make(map[model.AggregateId]model.Offset)
		var maxOffset model.Offset
		first := true
		for _, r := range records {
			if first || r.Offset > maxOffset {
				maxOffset = r.Offset
			}
			first = false
			byID[r.ID] = append(byID[r.ID], r.Header)

			// Marks never advance an Entry's offset.
			if r.Header.Kind != model.ActionMark {
				if prev, ok := actionOffset[r.ID]; !ok || r.Offset > prev {
					actionOffset[r.ID] = r.Offset
				}
			}

			if firstTimestampUnixNano == 0 || r.Timestamp.UnixNano() < firstTimestampUnixNano {
				firstTimestampUnixNano = r.Timestamp.UnixNano()
			}
		}

		pe := model.PartitionEntry{
			Partition: partition,
			Offset:    maxOffset,
			Entries:   make(map[model.AggregateId]model.Entry),
		}
		for id, actions := range byID {
			info := model.FoldActions(actions)
			if info.IsEmpty() {
				continue
			}
			pe.Entries[id] = model.Entry{ID: id, Offset: actionOffset[id], Info: info}
		}
		candidate[partition] = pe
	}
	return candidate, firstTimestampUnixNano
}

// combineAndTrim merges a candidate batch of PartitionEntries into the
// current entries, then trims to maxSize if needed.
func combineAndTrim(
	current map[model.Partition]model.PartitionEntry,
	candidate map[model.Partition]model.PartitionEntry,
	maxSize int,
) map[model.Partition]model.PartitionEntry {
	merged := make(map[model.Partition]model.PartitionEntry, len(current)+len(candidate))
	for p, pe := range current {
		merged[p] = pe
	}
	for p, pe := range candidate {
		if existing, ok := merged[p]; ok {
			merged[p] = existing.Combine(pe)
		} else {
			merged[p] = pe
		}
	}

	total := 0
	for _, pe := range merged {
		total += len(pe.Entries)
	}
	if total <= maxSize || len(merged) == 0 {
		return merged
	}

	perPartitionCap := maxSize / len(merged)
	if perPartitionCap < 1 {
		perPartitionCap = 1
	}
	for p, pe := range merged {
		if len(pe.Entries) <= perPartitionCap {
			continue
		}
		trimmed := maxEntryOffset(pe.Entries)
		merged[p] = model.PartitionEntry{
			Partition: pe.Partition,
			Offset:    pe.Offset,
			Entries:   make(map[model.AggregateId]model.Entry),
			Trimmed:   &trimmed,
		}
	}
	return merged
}

func maxEntryOffset(entries map[model.AggregateId]model.Entry) model.Offset {
	var max model.Offset
	first := true
	for _, e := range entries {
		if first || e.Offset > max {
			max = e.Offset
		}
		first = false
	}
	return max
}

// removeUntil drops entries whose offset is <= the durable pointer for
// their partition, and clears Trimmed when it falls at or below the
// pointer. Partitions absent from pointers are left untouched, since a
// missing pointer just means the durable store hasn't reported a position
// for that partition yet, not that it should be evicted. Returns the
// updated entries and the number of aggregate entries removed. Idempotent:
// applying the same pointers twice in a row removes nothing the second
// time.
func removeUntil(
	current map[model.Partition]model.PartitionEntry,
	pointers map[model.Partition]model.Offset,
) (map[model.Partition]model.PartitionEntry, int) {
	out := make(map[model.Partition]model.PartitionEntry, len(current))
	removed := 0
	for p, pe := range current {
		pointer, ok := pointers[p]
		if !ok {
			out[p] = pe
			continue
		}
		newEntries := make(map[model.AggregateId]model.Entry, len(pe.Entries))
		for id, e := range pe.Entries {
			if e.Offset <= pointer {
				removed++
				continue
			}
			newEntries[id] = e
		}
		trimmed := pe.Trimmed
		if trimmed != nil && *trimmed <= pointer {
			trimmed = nil
		}
		out[p] = model.PartitionEntry{
			Partition: pe.Partition,
			Offset:    pe.Offset,
			Entries:   newEntries,
			Trimmed:   trimmed,
		}
	}
	return out, removed
}

// decide evaluates a query against a snapshot: an unknown partition
// answers Invalid, an offset ahead of what's been observed answers Behind,
// the aggregate's entry answers Valid, and an aggregate with no entry
// answers Valid(Empty) unless the partition carries a Trimmed watermark,
// in which case it answers Invalid. The second return value is true when
// the query is Behind and a listener should be registered.
func decide(entries map[model.Partition]model.PartitionEntry, partition model.Partition, id model.AggregateId, offset model.Offset) (model.Result, bool) {
	pe, ok := entries[partition]
	if !ok {
		return model.InvalidResult(), false
	}
	if pe.Offset < offset {
		return model.Result{}, true
	}
	if e, ok := pe.Entries[id]; ok {
		return model.ValidResult(e.Info), false
	}
	if pe.Trimmed == nil {
		return model.ValidResult(model.EmptyInfo()), false
	}
	return model.InvalidResult(), false
}
