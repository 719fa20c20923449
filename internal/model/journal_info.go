package model

// JournalInfo summarises what is currently known about one aggregate's
// head. It is a two-variant value: Empty, or NonEmpty carrying the largest
// observed append upper-bound and an optional delete watermark (always
// <= seqNr).
type JournalInfo struct {
	empty    bool
	seqNr    SeqNr
	deleteTo *SeqNr
}

// EmptyInfo returns the Empty variant: no Append has been observed for the
// aggregate, or every observed Append was fully covered by a later Delete.
func EmptyInfo() JournalInfo {
	return JournalInfo{empty: true}
}

// NonEmptyInfo returns the NonEmpty variant with the given seqNr and
// optional delete watermark. deleteTo must be <= seqNr; the caller (fold
// logic in this package) is responsible for collapsing fully-covered
// ranges to Empty before calling this.
func NonEmptyInfo(seqNr SeqNr, deleteTo *SeqNr) JournalInfo {
	return JournalInfo{seqNr: seqNr, deleteTo: deleteTo}
}

// IsEmpty reports whether this is the Empty variant.
func (j JournalInfo) IsEmpty() bool {
	return j.empty
}

// SeqNr returns the largest append upper-bound seen, and false if this is
// the Empty variant.
func (j JournalInfo) SeqNr() (SeqNr, bool) {
	if j.empty {
		return 0, false
	}
	return j.seqNr, true
}

// DeleteTo returns the delete watermark, or nil if none is known. Always
// nil when IsEmpty is true.
func (j JournalInfo) DeleteTo() *SeqNr {
	return j.deleteTo
}

// Combine merges two JournalInfo values field-wise: Empty is the identity,
// and combining two NonEmpty values takes the max of seqNr and the max of
// deleteTo (nil treated as absent, not as zero). Combine is associative and
// commutative.
func (j JournalInfo) Combine(other JournalInfo) JournalInfo {
	if j.empty {
		return other
	}
	if other.empty {
		return j
	}
	seqNr := j.seqNr
	if other.seqNr > seqNr {
		seqNr = other.seqNr
	}
	return JournalInfo{seqNr: seqNr, deleteTo: maxDeleteTo(j.deleteTo, other.deleteTo)}
}

func maxDeleteTo(a, b *SeqNr) *SeqNr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

// FoldActions folds an ordered sequence of JournalActions for a single
// aggregate into a JournalInfo, starting from Empty. Marks never advance
// seqNr. An aggregate whose Appends are fully covered by a later Delete
// folds back to Empty.
func FoldActions(actions []JournalAction) JournalInfo {
	var (
		seqNr     SeqNr
		deleteTo  *SeqNr
		hasAppend bool
	)
	for _, a := range actions {
		switch a.Kind {
		case ActionAppend:
			if !hasAppend || a.Range.To > seqNr {
				seqNr = a.Range.To
			}
			hasAppend = true
		case ActionDelete:
			if deleteTo == nil || a.UpTo > *deleteTo {
				upTo := a.UpTo
				deleteTo = &upTo
			}
		case ActionMark:
			// no-op: marks do not contribute to JournalInfo.
		}
	}
	if !hasAppend {
		return EmptyInfo()
	}
	if deleteTo != nil && *deleteTo >= seqNr {
		return EmptyInfo()
	}
	return NonEmptyInfo(seqNr, deleteTo)
}
