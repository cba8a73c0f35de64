package domain

type ActionKind string

const (
	ActionFavorite ActionKind = "favorite"
	ActionEdit     ActionKind = "edit"
	ActionDelete   ActionKind = "delete"
	ActionCreate   ActionKind = "create"
)

// PendingAction is a user intent deferred until a username is supplied.
// Movie is nil for ActionCreate.
type PendingAction struct {
	Kind  ActionKind `json:"kind"`
	Movie *Movie     `json:"movie,omitempty"`
}
