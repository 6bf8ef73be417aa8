// Package remote provides the client for the backend content API: paginated
// content listing, profile lookup, bearer authentication with single-retry
// token refresh, and a circuit breaker that fails fast when the upstream is
// down.
package remote

import (
	"encoding/json"
	"fmt"
)

// Profile is a user profile fragment as returned by the backend
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Content is a feed item. Its author reference arrives in one of three wire
// shapes: a populated profile object, a bare opaque id string, or a plain
// display-name string.
type Content struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	MediaURL    string    `json:"mediaUrl"`
	Thumbnail   string    `json:"thumbnail"`
	DurationMs  int64     `json:"durationMs"`
	Description string    `json:"description,omitempty"`
	Author      AuthorRef `json:"author"`
}

// AuthorRef holds either a populated profile or the raw string the backend
// sent in its place. Exactly one of the two is set for a well-formed record.
type AuthorRef struct {
	Profile *Profile
	Raw     string
}

// UnmarshalJSON accepts both the object and the string wire shapes
func (a *AuthorRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*a = AuthorRef{}
		return nil
	}

	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("author string: %w", err)
		}
		*a = AuthorRef{Raw: raw}
		return nil
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("author object: %w", err)
	}
	*a = AuthorRef{Profile: &profile}
	return nil
}

// MarshalJSON writes the populated profile when present, otherwise the raw string
func (a AuthorRef) MarshalJSON() ([]byte, error) {
	if a.Profile != nil {
		return json.Marshal(a.Profile)
	}
	return json.Marshal(a.Raw)
}

// IsResolved reports whether the author carries a populated profile
func (a AuthorRef) IsResolved() bool {
	return a.Profile != nil
}
