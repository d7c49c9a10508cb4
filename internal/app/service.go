// Package app wires the domain services behind the HTTP surface: session
// handling, the entity operations guarded by the visibility engine, and the
// import job endpoints.
package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"wishlane/api/internal/authpw"
	"wishlane/api/internal/family"
	"wishlane/api/internal/jobs"
	"wishlane/api/internal/store"
)

// Store is the entity-store surface the service consumes. The postgres store
// implements all of it; tests fake the slices they need.
type Store interface {
	Ping(ctx context.Context) error

	// users
	CreateUser(ctx context.Context, u store.User) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetAnyUserByEmail(ctx context.Context, email string) (store.User, error)
	UpdateUserName(ctx context.Context, userID, displayName string) error
	UpdateUserEmail(ctx context.Context, userID, email string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	UpdateUserPublic(ctx context.Context, userID string, isPublic bool) error
	DeactivateUser(ctx context.Context, userID string) error
	ListSubusers(ctx context.Context, parentID string) ([]store.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]store.User, error)
	FilterActiveUserIDs(ctx context.Context, ids []string) ([]string, error)

	// groups
	CreateGroup(ctx context.Context, g store.Group) error
	GetGroup(ctx context.Context, groupID string) (store.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]store.Group, error)
	UpdateGroup(ctx context.Context, g store.Group) error
	SoftDeleteGroup(ctx context.Context, groupID string) error

	// lists
	CreateList(ctx context.Context, l store.List) error
	GetList(ctx context.Context, listID string) (store.List, error)
	ListListsByOwner(ctx context.Context, ownerID string) ([]store.List, error)
	ListListsByIDs(ctx context.Context, ids []string) ([]store.List, error)
	ListListsVisibleToGroup(ctx context.Context, groupID string) ([]store.List, error)
	UpdateList(ctx context.Context, l store.List) error
	SoftDeleteList(ctx context.Context, listID string) error

	// items
	CreateItem(ctx context.Context, i store.ListItem) error
	CreateItems(ctx context.Context, items []store.ListItem) error
	GetItem(ctx context.Context, itemID string) (store.ListItem, error)
	ListItemsByIDs(ctx context.Context, ids []string) ([]store.ListItem, error)
	ListItemsInList(ctx context.Context, listID string) ([]store.ListItem, error)
	UpdateItem(ctx context.Context, i store.ListItem) error
	SoftDeleteItem(ctx context.Context, itemID string) error
	SoftDeleteItems(ctx context.Context, itemIDs []string) error
	UpdateItemLists(ctx context.Context, itemID string, lists []string) error
	UpdateItemVisibility(ctx context.Context, itemID string, users, groups []string, matchList bool) error
	UpdateItemPublicityPriority(ctx context.Context, itemID string, isPublic bool, priority int) error
	UpdateItemDeleteOnDate(ctx context.Context, itemID string, deleteOn *time.Time) error
	CreateItemLink(ctx context.Context, link store.ItemLink) error
	ListItemLinks(ctx context.Context, itemID string) ([]store.ItemLink, error)
	DeleteItemLink(ctx context.Context, linkID string) error

	// gift intents
	UpsertGetting(ctx context.Context, g store.Getting) error
	DeleteGetting(ctx context.Context, giverID, getterID, itemID string) error
	ListGettingsForItem(ctx context.Context, itemID string) ([]store.Getting, error)
	ListGettingsByGiver(ctx context.Context, giverID, getterID string) ([]store.Getting, error)
	UpsertGoInOn(ctx context.Context, g store.GoInOn) error
	DeleteGoInOn(ctx context.Context, giverID, getterID, itemID string) error
	ListGoInOnsForItem(ctx context.Context, itemID string) ([]store.GoInOn, error)
	ListGoInOnsByGiver(ctx context.Context, giverID, getterID string) ([]store.GoInOn, error)

	// proposals
	CreateProposal(ctx context.Context, p store.Proposal, participants []store.ProposalParticipant) error
	GetProposal(ctx context.Context, proposalID string) (store.Proposal, error)
	ListProposalParticipants(ctx context.Context, proposalID string) ([]store.ProposalParticipant, error)
	ListProposalsForUser(ctx context.Context, userID string) ([]store.Proposal, error)
	RespondToProposal(ctx context.Context, proposalID, userID string, accepted, rejected, isBuying bool) (string, error)
	SoftDeleteProposal(ctx context.Context, proposalID string) error

	// events
	CreateEvent(ctx context.Context, e store.Event) error
	GetEvent(ctx context.Context, eventID string) (store.Event, error)
	ListEventsForUser(ctx context.Context, userID string) ([]store.Event, error)
	UpdateEvent(ctx context.Context, e store.Event) error
	SoftDeleteEvent(ctx context.Context, eventID string) error
	UpsertEventRecipient(ctx context.Context, r store.EventRecipient) error
	ListEventRecipients(ctx context.Context, eventID string) ([]store.EventRecipient, error)
	DeleteEventRecipient(ctx context.Context, eventID, userID string) error

	// images
	GetImage(ctx context.Context, imageID string) (store.Image, error)
	AppendItemImage(ctx context.Context, itemID, imageID string) error

	// item views
	MarkItemsViewed(ctx context.Context, userID string, itemIDs []string) error
	ListViewedItemIDs(ctx context.Context, userID string) ([]string, error)
	ListItemViewers(ctx context.Context, itemID string) ([]store.ItemView, error)
	CountItemViews(ctx context.Context, itemID string) (int, error)
	ListUnviewedItemsInList(ctx context.Context, userID, listID string) ([]store.ListItem, error)
}

// Mailer is the outbound-mail surface the service uses.
type Mailer interface {
	IsConfigured() bool
	SendGroupInvite(ctx context.Context, to, inviterName, groupName, joinURL string) error
}

// Service implements the product's operations. One Service is shared by all
// requests; per-request state (the family snapshot cache) lives in viewer
// contexts created per call.
type Service struct {
	store       Store
	auth        *authpw.Service
	engine      *jobs.Engine
	mailer      Mailer
	imageLoader ImageLoader
	readiness   []readinessCheck
	log         *slog.Logger
	frontendURL string
}

func NewService(st Store, auth *authpw.Service, engine *jobs.Engine, mailer Mailer, frontendURL string, log *slog.Logger) *Service {
	return &Service{
		store:       st,
		auth:        auth,
		engine:      engine,
		mailer:      mailer,
		frontendURL: frontendURL,
		log:         log,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type readinessCheck struct {
	name  string
	probe func(context.Context) error
}

// AddReadinessCheck registers an extra dependency probe for the ready
// endpoint, alongside the built-in database check.
func (s *Service) AddReadinessCheck(name string, probe func(context.Context) error) {
	s.readiness = append(s.readiness, readinessCheck{name: name, probe: probe})
}

// ReadinessChecks runs every registered probe plus the database ping and
// reports per-dependency results.
func (s *Service) ReadinessChecks(ctx context.Context) (map[string]any, bool) {
	checks := map[string]any{}
	ready := true
	record := func(name string, err error) {
		if err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	record("database", s.store.Ping(ctx))
	for _, check := range s.readiness {
		record(check.name, check.probe(ctx))
	}
	return checks, ready
}

func (s *Service) AuthService() *authpw.Service {
	return s.auth
}

// Session identifies the authenticated caller.
type Session struct {
	UserID   string
	UserName string
}

// SessionFromToken validates the bearer token and loads the caller. Inactive
// users cannot hold sessions.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	userID, err := s.auth.Authenticate(token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil || !user.IsActive {
		return Session{}, unauthorizedError()
	}
	return Session{UserID: user.ID, UserName: user.DisplayName}, nil
}

// viewer bundles a session with its lazily-built family snapshot so a single
// request evaluates every visibility rule against one snapshot.
type viewer struct {
	session  Session
	resolver *family.Resolver
}

func (s *Service) viewerFor(session Session) *viewer {
	return &viewer{session: session, resolver: family.NewResolver(s.store)}
}

func (v *viewer) snapshot(ctx context.Context) (*family.Snapshot, error) {
	return v.resolver.Resolve(ctx, v.session.UserID)
}

// isParentOf reports whether the session user is the parent of the given
// user.
func (s *Service) isParentOf(ctx context.Context, session Session, userID string) bool {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return false
	}
	return user.ParentID != nil && *user.ParentID == session.UserID
}

// ownsOrParents reports owner-or-parent-of-owner, the mutation rule shared
// by lists and several bulk item operations.
func (s *Service) ownsOrParents(ctx context.Context, session Session, ownerID string) bool {
	if ownerID == session.UserID {
		return true
	}
	return s.isParentOf(ctx, session, ownerID)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Pagination bounds shared by the list endpoints.
const (
	minLimit = 1
	maxLimit = 1000
)

func checkPagination(limit, offset int) error {
	if limit < minLimit || limit > maxLimit {
		return validationError("limit must be between 1 and 1000")
	}
	if offset < 0 {
		return validationError("offset must not be negative")
	}
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
