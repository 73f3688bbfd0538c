package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FlexibleID accepts both JSON strings and numbers.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

type communityWire struct {
	ID          FlexibleID `json:"id"`
	MongoID     FlexibleID `json:"_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url"`
	MemberCount int        `json:"member_count"`
	CreatorName string     `json:"creator_name"`
	Category    string     `json:"category"`
}

// UnmarshalJSON accepts numeric ids and the "_id" alias some API builds emit.
func (c *Community) UnmarshalJSON(data []byte) error {
	var w communityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := string(w.ID)
	if id == "" {
		id = string(w.MongoID)
	}
	*c = Community{
		ID:          id,
		Name:        w.Name,
		Description: w.Description,
		ImageURL:    w.ImageURL,
		MemberCount: w.MemberCount,
		CreatorName: w.CreatorName,
		Category:    w.Category,
	}
	return nil
}

var userKnownKeys = map[string]struct{}{"name": {}, "email": {}, "is_creator": {}}

// UnmarshalJSON keeps unknown profile fields in Extra so they survive a round trip.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("user must be a JSON object")
	}
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = User(p)
	for k, v := range raw {
		if _, known := userKnownKeys[k]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]any)
		}
		u.Extra[k] = val
	}
	return nil
}

// MarshalJSON writes Extra back next to the known fields.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		out[k] = v
	}
	out["name"] = u.Name
	if u.Email != "" {
		out["email"] = u.Email
	}
	out["is_creator"] = u.IsCreator
	return json.Marshal(out)
}
