// Package stash is the typed client for the Stash bookmarking backend.
// It wires the session manager, the auth client, and the row client
// together and exposes the operations the Stash apps perform: saving
// pages and highlights, listing recent saves, and managing folders.
package stash

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/octabyte/stash-go/auth"
	"github.com/octabyte/stash-go/deeplink"
	"github.com/octabyte/stash-go/enums"
	"github.com/octabyte/stash-go/models"
	"github.com/octabyte/stash-go/rest"
	"github.com/octabyte/stash-go/scrape"
	"github.com/octabyte/stash-go/session"
	"github.com/octabyte/stash-go/utils"
	"github.com/octabyte/stash-go/utils/logger"
)

const (
	tableSaves    = "saves"
	tableFolders  = "folders"
	tableComments = "comments"
)

// ErrNotAuthenticated means an operation that writes rows was called
// without a signed-in user.
var ErrNotAuthenticated = errors.New("stash: not authenticated")

// Client is a Stash API client bound to one session.
type Client struct {
	Session *session.Manager
	DB      *rest.Client

	source string
	pages  *resty.Client
}

// New builds a client and restores any persisted session, so a process
// handling a share handoff never has to re-authenticate mid-flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		var err error
		if store, err = defaultStore(); err != nil {
			return nil, fmt.Errorf("stash: default store: %w", err)
		}
	}

	source := cfg.Source
	if source == "" {
		source = enums.SaveSourceGo
	}

	authClient, err := auth.New(auth.Config{
		URL:     cfg.URL,
		AnonKey: cfg.AnonKey,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.New(store, authClient, cfg.AnonKey)
	if err := sessions.Load(ctx); err != nil {
		return nil, err
	}

	db, err := rest.New(rest.Config{URL: cfg.URL, Timeout: cfg.Timeout}, sessions)
	if err != nil {
		return nil, err
	}

	pages := resty.New()
	if cfg.Timeout > 0 {
		pages.SetTimeout(cfg.Timeout)
	}

	return &Client{
		Session: sessions,
		DB:      db,
		source:  source.String(),
		pages:   pages,
	}, nil
}

// RecentSaves lists the newest saves, most recent first.
func (c *Client) RecentSaves(ctx context.Context, limit int) ([]models.Save, error) {
	var saves []models.Save
	err := c.DB.Select(ctx, tableSaves, rest.Query{
		Order: "created_at.desc",
		Limit: limit,
	}, &saves)
	return saves, err
}

// SavesInFolder lists the saves filed under one folder.
func (c *Client) SavesInFolder(ctx context.Context, folderID string) ([]models.Save, error) {
	var saves []models.Save
	err := c.DB.Select(ctx, tableSaves, rest.Query{
		Filters: map[string]string{"folder_id": folderID},
		Order:   "created_at.desc",
	}, &saves)
	return saves, err
}

// CreateSaveParams carries everything a new save can hold. URL and
// Title are the only pieces every capture path has.
type CreateSaveParams struct {
	URL         string
	Title       string
	Content     string
	Excerpt     string
	Highlight   string
	Author      string
	PublishedAt string
	ImageURL    string
	FolderID    string
}

// CreateSave inserts a save for the current user and returns the
// stored row.
func (c *Client) CreateSave(ctx context.Context, p CreateSaveParams) (*models.Save, error) {
	user, err := c.Session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	row := models.CreateSaveRequest{
		UserID:      user.ID,
		URL:         p.URL,
		Title:       p.Title,
		Content:     p.Content,
		Excerpt:     p.Excerpt,
		Highlight:   p.Highlight,
		SiteName:    utils.SiteName(p.URL),
		Author:      p.Author,
		PublishedAt: p.PublishedAt,
		ImageURL:    p.ImageURL,
		FolderID:    p.FolderID,
		Source:      c.source,
	}

	var saves []models.Save
	if err := c.DB.Insert(ctx, tableSaves, row, &saves); err != nil {
		return nil, err
	}
	if len(saves) == 0 {
		return nil, fmt.Errorf("stash: insert returned no rows")
	}

	logger.LogInfo("stash: saved page",
		zap.String("url", p.URL),
		zap.String("id", saves[0].ID))
	return &saves[0], nil
}

// SaveHighlight captures selected text from a page.
func (c *Client) SaveHighlight(ctx context.Context, pageURL, title, highlight string) (*models.Save, error) {
	return c.CreateSave(ctx, CreateSaveParams{
		URL:       pageURL,
		Title:     title,
		Highlight: highlight,
	})
}

// SaveFromLink stores the page handed over by a share-extension deep
// link. It runs entirely off the already-persisted session.
func (c *Client) SaveFromLink(ctx context.Context, link *deeplink.SaveRequest) (*models.Save, error) {
	return c.CreateSave(ctx, CreateSaveParams{
		URL:       link.URL,
		Title:     link.Title,
		Highlight: link.Highlight,
	})
}

// SavePage fetches a page, extracts its metadata, and stores it. The
// fetch failing is not fatal; the save is created with the URL alone.
func (c *Client) SavePage(ctx context.Context, pageURL, folderID string) (*models.Save, error) {
	params := CreateSaveParams{URL: pageURL, FolderID: folderID}

	resp, err := c.pages.R().SetContext(ctx).Get(pageURL)
	if err == nil && resp.IsSuccess() {
		meta := scrape.Extract(bytes.NewReader(resp.Body()))
		params.Title = meta.Title
		params.Excerpt = meta.Description
		params.Author = meta.Author
		params.PublishedAt = meta.PublishedAt
		params.ImageURL = meta.ImageURL
	} else {
		logger.LogWarn("stash: page fetch failed, saving URL only",
			zap.String("url", pageURL),
			zap.Int("status", resp.StatusCode()),
			zap.Error(err))
	}
	if params.Title == "" {
		params.Title = pageURL
	}

	return c.CreateSave(ctx, params)
}

// UpdateSave patches arbitrary columns of a save and returns the
// updated row.
func (c *Client) UpdateSave(ctx context.Context, id string, patch map[string]interface{}) (*models.Save, error) {
	var saves []models.Save
	if err := c.DB.Update(ctx, tableSaves, id, patch, &saves); err != nil {
		return nil, err
	}
	if len(saves) == 0 {
		return nil, fmt.Errorf("stash: update returned no rows")
	}
	return &saves[0], nil
}

// SetFavorite toggles the favorite flag on a save.
func (c *Client) SetFavorite(ctx context.Context, id string, favorite bool) (*models.Save, error) {
	return c.UpdateSave(ctx, id, map[string]interface{}{"is_favorite": favorite})
}

// DeleteSave removes a save.
func (c *Client) DeleteSave(ctx context.Context, id string) error {
	return c.DB.Delete(ctx, tableSaves, id)
}

// Folders lists the user's folders ordered by name.
func (c *Client) Folders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := c.DB.Select(ctx, tableFolders, rest.Query{Order: "name.asc"}, &folders)
	return folders, err
}

// CreateFolder inserts a folder for the current user.
func (c *Client) CreateFolder(ctx context.Context, name, color string) (*models.Folder, error) {
	user, err := c.Session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	var folders []models.Folder
	err = c.DB.Insert(ctx, tableFolders, models.CreateFolderRequest{
		UserID: user.ID,
		Name:   name,
		Color:  color,
	}, &folders)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("stash: insert returned no rows")
	}
	return &folders[0], nil
}

// DeleteFolder removes a folder. Saves keep their rows; the backend
// nulls the folder reference.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.DB.Delete(ctx, tableFolders, id)
}

// Comments lists the comments on a save, oldest first when ascending.
func (c *Client) Comments(ctx context.Context, saveID string, ascending bool) ([]models.Comment, error) {
	order := "created_at.desc"
	if ascending {
		order = "created_at.asc"
	}

	var comments []models.Comment
	err := c.DB.Select(ctx, tableComments, rest.Query{
		Filters: map[string]string{"save_id": saveID},
		Order:   order,
	}, &comments)
	return comments, err
}

// CreateComment attaches a comment to a save for the current user.
// imageURL may be empty; uploading the image itself is the backend
// storage bucket's job.
func (c *Client) CreateComment(ctx context.Context, saveID, content, imageURL string) (*models.Comment, error) {
	user, err := c.Session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	var comments []models.Comment
	err = c.DB.Insert(ctx, tableComments, models.CreateCommentRequest{
		SaveID:   saveID,
		UserID:   user.ID,
		Content:  content,
		ImageURL: imageURL,
	}, &comments)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("stash: insert returned no rows")
	}
	return &comments[0], nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.DB.Delete(ctx, tableComments, id)
}
