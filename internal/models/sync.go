package models

// SyncStats summarises the outcome of a sync protocol run.
type SyncStats struct {
	Added           int `json:"added"`
	Updated         int `json:"updated"`
	Removed         int `json:"removed"`
	Skipped         int `json:"skipped"`
	Unchanged       int `json:"unchanged"`
	LocalTotalAfter int `json:"local_total_after"`
}

// Sync operation names used for background dispatch and metrics labels.
const (
	SyncOpInsert = "insert"
	SyncOpUpdate = "update"
	SyncOpDelete = "delete"
	SyncOpMirror = "mirror"
	SyncOpPush   = "push"
)
