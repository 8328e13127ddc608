package api

// CreateResourceRequest is the body of POST /api/v1/{kind}.
type CreateResourceRequest struct {
	Title    string `json:"title"`
	ParentID string `json:"parent_id,omitempty"`
}

// MoveResourceRequest is the body of POST /api/v1/{kind}/{id}/move. An empty
// ParentID moves the resource to the root.
type MoveResourceRequest struct {
	ParentID string `json:"parent_id"`
}

// ShareResourceRequest is the body of POST /api/v1/{kind}/{id}/share.
type ShareResourceRequest struct {
	UserID   string `json:"user_id"`
	Relation string `json:"relation"`
}

// MemberRequest is the body of group membership mutations. IsGroup selects a
// nested group's member set as the subject instead of a single user.
type MemberRequest struct {
	MemberID string `json:"member_id"`
	IsGroup  bool   `json:"is_group,omitempty"`
}
