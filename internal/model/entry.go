package model

// Entry is one aggregate's known head within a partition. Info is always
// the NonEmpty variant: Empty entries are never stored, they are answered
// as "Valid(Empty)" instead.
type Entry struct {
	ID     AggregateId
	Offset Offset
	Info   JournalInfo
}

// Combine merges two Entry values for the same aggregate by taking the
// larger offset and combining Info. Combine is associative and commutative.
func (e Entry) Combine(other Entry) Entry {
	offset := e.Offset
	if other.Offset > offset {
		offset = other.Offset
	}
	return Entry{
		ID:     e.ID,
		Offset: offset,
		Info:   e.Info.Combine(other.Info),
	}
}

// PartitionEntry is the per-partition state: the max log offset seen for
// the partition (any action), the per-aggregate entries, and the
// watermark below which entries were evicted by size-based trimming.
type PartitionEntry struct {
	Partition Partition
	Offset    Offset
	Entries   map[AggregateId]Entry
	Trimmed   *Offset
}

// NewPartitionEntry returns an empty PartitionEntry for the given
// partition, seeded at the given offset (typically a durable pointer or
// zero).
func NewPartitionEntry(partition Partition, offset Offset) PartitionEntry {
	return PartitionEntry{
		Partition: partition,
		Offset:    offset,
		Entries:   make(map[AggregateId]Entry),
	}
}

// Combine merges two PartitionEntry values for the same partition: the max
// offset, a union of Entries combined by Entry.Combine on collision, and
// the receiver's Trimmed watermark carried forward (the other side is
// always a freshly-folded ingest batch, which never carries a Trimmed
// watermark of its own). Combine is associative and commutative on the
// (offset, entries) projection.
func (pe PartitionEntry) Combine(other PartitionEntry) PartitionEntry {
	offset := pe.Offset
	if other.Offset > offset {
		offset = other.Offset
	}
	merged := make(map[AggregateId]Entry, len(pe.Entries)+len(other.Entries))
	for id, e := range pe.Entries {
		merged[id] = e
	}
	for id, e := range other.Entries {
		if existing, ok := merged[id]; ok {
			merged[id] = existing.Combine(e)
		} else {
			merged[id] = e
		}
	}
	trimmed := pe.Trimmed
	if trimmed == nil {
		trimmed = other.Trimmed
	}
	return PartitionEntry{
		Partition: pe.Partition,
		Offset:    offset,
		Entries:   merged,
		Trimmed:   trimmed,
	}
}
