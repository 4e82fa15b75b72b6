package models

// Role distinguishes the presenter from respondents. Identity is supplied
// by the caller; there is no authentication layer.
type Role string

const (
	RolePresenter  Role = "presenter"
	RoleRespondent Role = "respondent"
)

// Member is a stable participant identity as seen in presence snapshots.
// The same identity may appear once per live connection it holds
// (multi-tab); the registry never deduplicates across connections.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}
