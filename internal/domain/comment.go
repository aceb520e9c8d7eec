package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// AuthorRole indicates who authored a comment.
type AuthorRole string

const (
	AuthorRoleEmployee AuthorRole = "employee"
	AuthorRoleAgent    AuthorRole = "agent"
	AuthorRoleSystem   AuthorRole = "system"
)

// Comment captures communications and audit notes in a ticket thread.
type Comment struct {
	ID          string
	TicketID    string
	Body        string
	AuthorRole  AuthorRole
	AuthorID    *string
	AuthorName  *string
	IsAutoReply bool
	CreatedAt   time.Time
}

// Attachment stores metadata for a file referenced by a ticket.
type Attachment struct {
	ID        string
	TicketID  string
	Filename  string
	URL       string
	IsImage   bool
	CreatedAt time.Time
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {}, ".heic": {},
}

// LooksLikeImage guesses from the file extension.
func LooksLikeImage(filename string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}
