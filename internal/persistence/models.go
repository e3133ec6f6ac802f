package persistence

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// User is a local account that can take part in chat rooms. Email is the
// identity used to upsert participants.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChatRoom is the local association between a domain object and a remote
// chat room.
type ChatRoom struct {
	ID           string
	RemoteRoomID string
	Name         string
	ObjectType   string
	ObjectID     string
	Tags         []string
	IsArchived   bool
	IsDeleted    bool
	CreatedBy    string
	Participants []User
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatRoomFilter narrows chat room listings. String filters are
// case-insensitive substring matches; empty values are ignored.
type ChatRoomFilter struct {
	// UserID restricts results to rooms created by or shared with the user.
	UserID           string
	Name             string
	ObjectType       string
	ObjectID         string
	ParticipantEmail string
	Archived         *bool
}

// ChatRoomMatch identifies an existing association for idempotent creation.
type ChatRoomMatch struct {
	ObjectType string
	ObjectID   string
	Tags       []string
	Emails     []string
}

// NormalizeTags trims, de-duplicates and sorts tags so that equal tag sets
// have one representation.
func NormalizeTags(tags []string) []string {
	out := lo.Uniq(lo.Compact(lo.Map(tags, func(t string, _ int) string { return strings.TrimSpace(t) })))
	sort.Strings(out)
	return out
}
