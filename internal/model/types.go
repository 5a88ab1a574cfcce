package model

import "strings"

type ItemKind string

const (
	KindText  ItemKind = "text"
	KindImage ItemKind = "image"
	KindFile  ItemKind = "file"
)

// KindForMime classifies a binary payload. Images are a presentational
// subtype of file, split on the declared media type only.
func KindForMime(mimeType string) ItemKind {
	if strings.HasPrefix(mimeType, "image/") {
		return KindImage
	}
	return KindFile
}

// Item is one accepted clipboard entry. Immutable after acceptance;
// Seq is the session-assigned log position.
type Item struct {
	ID            string   `json:"id"`
	Seq           int64    `json:"seq"`
	Kind          ItemKind `json:"kind"`
	Content       string   `json:"content,omitempty"`
	Name          string   `json:"name,omitempty"`
	MimeType      string   `json:"mimeType,omitempty"`
	Size          int64    `json:"size,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
	DownloadToken string   `json:"downloadToken,omitempty"`

	BlobHandle string `json:"-"`
}

func (i Item) IsFile() bool {
	return i.Kind == KindImage || i.Kind == KindFile
}

type SessionInfo struct {
	ID        string `json:"sessionId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
	ItemCount int    `json:"itemCount"`
	Members   int    `json:"members"`
}
