package permissions

// Mask is a bitmask of the relations a user holds on an object, one bit per
// tracked relation, OR-combined across all relations.
type Mask int

const (
	// MaskNone carries no relations.
	MaskNone Mask = 0

	// BitViewer grants read-level access.
	BitViewer Mask = 1 << iota
	// BitEditor grants edit-level access.
	BitEditor
	// BitOwner grants full control.
	BitOwner
	// BitApprover grants approval rights on documents.
	BitApprover
	// BitMember marks membership in a group.
	BitMember
)

// relationBits maps relation names to their bits. Relations outside this map
// (structural relations like "parent", or anything the change feed surfaces
// that we do not track) map to MaskNone and are ignored by aggregation.
var relationBits = map[string]Mask{
	"viewer":   BitViewer,
	"editor":   BitEditor,
	"owner":    BitOwner,
	"approver": BitApprover,
	"member":   BitMember,
}

// RelationBit returns the bit for a relation name, or MaskNone for relations
// that are not tracked. Unknown relations are not an error: the authorization
// store's change feed routinely references structural relations.
func RelationBit(relation string) Mask {
	return relationBits[relation]
}

// Combine ORs a set of relation names into a single mask. Order and
// duplication do not affect the result.
func Combine(relations ...string) Mask {
	var m Mask
	for _, r := range relations {
		m |= RelationBit(r)
	}
	return m
}

// Satisfies reports whether the mask carries every bit of required.
func (m Mask) Satisfies(required Mask) bool {
	return m&required == required
}
