package models

// Folder is a row in the folders table.
type Folder struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// CreateFolderRequest is the insert payload for the folders table.
type CreateFolderRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
}
