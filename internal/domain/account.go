package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AccountRecord is one uploaded social-media account.
// Fields are loosely typed: a value may be a string, a number, a boolean,
// or a string encoding of any of those. Records are read-only to the engine.
type AccountRecord map[string]any

// Well-known record fields.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldEmailVerified   = "email_verified"
	FieldPhoneVerified   = "phone_verified"
	FieldCreatedAt       = "created_at"
	FieldPosts           = "posts"
	FieldFollowers       = "followers"
	FieldFollowing       = "following"
	FieldBio             = "bio"
	FieldFullName        = "full_name"
	FieldWebsite         = "website"
	FieldLocation        = "location"
	FieldProfilePicture  = "profile_picture"
	FieldPostingHours    = "posting_hours"
	FieldRecentLocations = "recent_locations"
	FieldRecentPosts     = "recent_posts"
)

// String returns the field rendered as a string, or "" when absent.
func (r AccountRecord) String(key string) string {
	return Stringify(r[key])
}

// Stringify renders a loosely typed field value as a string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Username returns the record's username.
func (r AccountRecord) Username() string {
	return r.String(FieldUsername)
}

// Dataset is one uploaded batch of account records for a tenant.
// It is the record source the analyze and check operations read from.
type Dataset struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Format     string          `json:"format"` // "csv" or "json"
	Records    []AccountRecord `json:"records"`
	UploadedAt time.Time       `json:"uploadedAt"`
}
