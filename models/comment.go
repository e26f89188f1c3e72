package models

// Comment is a row in the comments table, attached to one save.
type Comment struct {
	ID        string `json:"id"`
	SaveID    string `json:"save_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	ImageURL  string `json:"image_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateCommentRequest is the insert payload for the comments table.
type CreateCommentRequest struct {
	SaveID   string `json:"save_id"`
	UserID   string `json:"user_id"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}
