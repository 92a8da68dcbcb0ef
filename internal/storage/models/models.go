package models

import (
	"encoding/json"
	"time"
)

const (
	PostTypePost = "post"
	PostTypePage = "page"

	StatusPublish = "publish"
	StatusDraft   = "draft"
	StatusPending = "pending"
)

// Base names of the optional SEO tables, before the store's table prefix.
// They belong to the SEO plugin and are not created by the store's schema.
const (
	AnalyticsTable    = "rank_math_analytics_objects"
	InternalMetaTable = "rank_math_internal_meta"
)

// ModifiedLayout is the layout of Post.Modified as stored by the content store.
const ModifiedLayout = "2006-01-02 15:04:05"

type Post struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	Slug       string   `json:"slug"`
	AuthorID   int64    `json:"author_id"`
	AuthorName string   `json:"author_name"`
	Modified   string   `json:"modified"`
	Permalink  string   `json:"permalink"`
	Categories []string `json:"categories,omitempty"`
}

type User struct {
	ID           int64
	Login        string
	DisplayName  string
	PasswordHash string
	Capabilities []string
}

func (u *User) Can(capability string) bool {
	if u == nil {
		return false
	}
	for _, c := range u.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AnalyticsObject is a row of the SEO analytics table.
type AnalyticsObject struct {
	ID            int64  `json:"id"`
	Created       string `json:"created"`
	Title         string `json:"title"`
	Page          string `json:"page"`
	ObjectType    string `json:"object_type"`
	ObjectSubtype string `json:"object_subtype"`
	ObjectID      int64  `json:"object_id"`
	PrimaryKey    string `json:"primary_key"`
	SEOScore      string `json:"seo_score"`
	SchemasInUse  string `json:"schemas_in_use"`
}

// InternalMeta is a row of the SEO link-metadata table.
type InternalMeta struct {
	ObjectID          int64 `json:"object_id"`
	InternalLinkCount int64 `json:"internal_link_count"`
	ExternalLinkCount int64 `json:"external_link_count"`
	IncomingLinkCount int64 `json:"incoming_link_count"`
}

// SEOOptions is the site-level SEO settings document.
type SEOOptions struct {
	Raw map[string]any
}

// Title returns a string setting from the "titles" section.
func (o *SEOOptions) Title(key string) string {
	if o == nil {
		return ""
	}
	titles, ok := o.Raw["titles"].(map[string]any)
	if !ok {
		return ""
	}
	v, ok := titles[key].(string)
	if !ok {
		return ""
	}
	return v
}

func (o *SEOOptions) Empty() bool {
	return o == nil || len(o.Raw) == 0
}

func (o *SEOOptions) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Raw)
}

func (o *SEOOptions) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &o.Raw)
}
