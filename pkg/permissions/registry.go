package permissions

// Kind describes one secured resource kind: how it maps to the authorization
// store's type system, where its rows live, and which relations the
// permission cache tracks for it.
//
// The registry is populated once, below, as static data. There is no runtime
// type discovery: a kind that is not listed here is not secured.
type Kind struct {
	// Name is the authorization-store type name ("document", "folder", ...).
	Name string

	// ParentKind is the authorization-store type of this kind's parent.
	ParentKind string

	// Table is the relational table holding rows of this kind, and
	// TitleColumn the column carrying its display attribute (documents have
	// a title, folders and groups a name).
	Table       string
	TitleColumn string

	// TrackedRelations are the relations aggregated into the permission
	// cache for objects of this kind. Type-dependent: a group tracks
	// "member", a document does not.
	TrackedRelations []string
}

var kinds = []Kind{
	{
		Name:             "document",
		ParentKind:       "folder",
		Table:            "documents",
		TitleColumn:      "title",
		TrackedRelations: []string{"viewer", "editor", "owner", "approver"},
	},
	{
		Name:             "folder",
		ParentKind:       "folder",
		Table:            "folders",
		TitleColumn:      "name",
		TrackedRelations: []string{"viewer", "editor", "owner"},
	},
	{
		Name:             "group",
		ParentKind:       "group",
		Table:            "groups",
		TitleColumn:      "name",
		TrackedRelations: []string{"owner", "member"},
	},
}

// Kinds returns all registered secured resource kinds.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// KindByName looks up a kind by its authorization-store type name.
func KindByName(name string) (Kind, bool) {
	for _, k := range kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// TrackedTypes returns the authorization-store type names of all registered
// kinds. The sync engine uses this to decide which change-feed entries
// matter.
func TrackedTypes() []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.Name)
	}
	return out
}

// TrackedRelations returns the tracked relation set for a type name, or nil
// for unregistered types.
func TrackedRelations(typeName string) []string {
	k, ok := KindByName(typeName)
	if !ok {
		return nil
	}
	return k.TrackedRelations
}
