package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string // empty for invited placeholders
	IsActive     bool
	IsPublic     bool
	ParentID     *string // set for subusers
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Group struct {
	ID         string
	OwnerID    string
	Name       string
	MemberIDs  []string
	AdminIDs   []string
	InvitedIDs []string
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type List struct {
	ID              string
	OwnerID         string
	Name            string
	Description     string
	Public          bool
	VisibleToUsers  []string
	VisibleToGroups []string
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ListItem struct {
	ID                  string
	CreatedByID         string
	Name                string
	Price               *float64
	MinPrice            *float64
	MaxPrice            *float64
	Notes               string
	AmountWantedMin     int
	AmountWantedMax     int
	Priority            int
	Lists               []string
	VisibleToUsers      []string
	VisibleToGroups     []string
	IsPublic            bool
	MatchListVisibility bool
	IsCustom            bool
	CustomItemCreator   *string
	Deleted             bool
	DeleteOnDate        *time.Time
	ImageIDs            []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type ItemLink struct {
	ID     string
	ItemID string
	Label  string
	URL    string
}

// Getting statuses.
const (
	GettingWant    = "want"
	GettingBuying  = "buying"
	GettingBought  = "bought"
	GettingWrapped = "wrapped"
	GettingGiven   = "given"
)

type Getting struct {
	GiverID    string
	GetterID   string
	ItemID     string
	Status     string
	ProposalID *string
	UpdatedAt  time.Time
}

type GoInOn struct {
	GiverID   string
	GetterID  string
	ItemID    string
	CreatedAt time.Time
}

// Proposal statuses (derived from participants).
const (
	ProposalPending  = "pending"
	ProposalAccepted = "accepted"
	ProposalRejected = "rejected"
)

type Proposal struct {
	ID        string
	CreatorID string
	ItemID    string
	Status    string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProposalParticipant struct {
	ProposalID      string
	UserID          string
	AmountRequested *float64
	Accepted        bool
	Rejected        bool
	IsBuying        bool
}

type Event struct {
	ID        string
	OwnerID   string
	Name      string
	DueDate   *time.Time
	ViewerIDs []string
	Archived  bool
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventRecipient struct {
	EventID string
	UserID  string
	Note    string
	Budget  *float64
	Status  string
}

type Image struct {
	ID          string
	RecordID    string
	RecordType  string
	ContentType string
	Bytes       []byte // nil when stored externally
	StorageKey  string // object key when stored externally
	OriginalURL string
	OutputSize  int
	ProcessedAt time.Time
}

type ItemView struct {
	UserID   string
	ItemID   string
	ViewedAt time.Time
}

// Job statuses and types.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"

	JobTypeItemFetch      = "item_fetch"
	JobTypeWishlistImport = "wishlist_import"
	JobTypeCSVImport      = "csv_import"
)

type Job struct {
	ID        string
	UserID    string
	URL       string
	Status    string
	JobType   string
	Metadata  json.RawMessage // jobType-specific payload, e.g. csv bytes
	Result    json.RawMessage
	Error     string
	QueuedAt  time.Time
	UpdatedAt time.Time
}

type PasswordReset struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
}
