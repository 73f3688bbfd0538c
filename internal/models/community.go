// Package models defines the domain types for Biddge.
package models

// Community is a named group fetched from the remote API.
// The frontend only ever holds read-only copies of it.
type Community struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
	CreatorName string `json:"creator_name,omitempty"`
	Category    string `json:"category,omitempty"`
}

// DisplayCreator returns the creator attribution shown on cards and detail pages.
func (c Community) DisplayCreator() string {
	if c.CreatorName == "" {
		return "Biddge Team"
	}
	return c.CreatorName
}

// User is the cached profile stored alongside the session token.
type User struct {
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	IsCreator bool           `json:"is_creator"`
	Extra     map[string]any `json:"-"`
}
