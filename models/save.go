package models

// Save is a row in the saves table.
type Save struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	Highlight   string `json:"highlight,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	FolderID    string `json:"folder_id,omitempty"`
	IsFavorite  bool   `json:"is_favorite"`
	Source      string `json:"source"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// IsHighlight reports whether the save was captured from selected text.
func (s *Save) IsHighlight() bool {
	return s.Highlight != ""
}

// DisplayTitle returns the title, falling back to the leading part of
// the highlight for title-less selection saves.
func (s *Save) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	if s.Highlight != "" {
		if len(s.Highlight) > 50 {
			return s.Highlight[:50]
		}
		return s.Highlight
	}
	return "Untitled"
}

// CreateSaveRequest is the insert payload for the saves table.
type CreateSaveRequest struct {
	UserID      string `json:"user_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	Highlight   string `json:"highlight,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	FolderID    string `json:"folder_id,omitempty"`
	Source      string `json:"source"`
}
