package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wayfare/api/internal/auth"
	"wayfare/api/internal/authpw"
	"wayfare/api/internal/config"
	"wayfare/api/internal/email"
	"wayfare/api/internal/export"
	"wayfare/api/internal/search"
	"wayfare/api/internal/storage"
	"wayfare/api/internal/store"
	"wayfare/api/internal/util"
)

// Session is the resolved caller identity, built either from the session
// cookie or from a bearer token.
type Session struct {
	Token       string
	SessionID   string
	UserID      string
	Email       string
	DisplayName string
	JTI         string
	ExpiresAt   time.Time
}

type CreateTripInput struct {
	Name        string     `json:"name"`
	Destination string     `json:"destination"`
	StartsOn    *time.Time `json:"startsOn"`
	EndsOn      *time.Time `json:"endsOn"`
}

type CreateChecklistInput struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type UpdateItemInput struct {
	Content   *string `json:"content"`
	IsChecked *bool   `json:"isChecked"`
}

type ReorderInput struct {
	ChecklistID    string   `json:"checklistId"`
	OrderedItemIDs []string `json:"orderedItemIds"`
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateTrip(context.Context, store.Trip) error
	GetTrip(context.Context, string) (store.Trip, error)
	ListTripsForUser(context.Context, string) ([]store.Trip, error)
	IsTripMember(context.Context, string, string) (bool, error)
	AddParticipant(context.Context, string, string) error
	AcceptParticipant(context.Context, string, string) (bool, error)
	ListParticipants(context.Context, string) ([]store.TripParticipant, error)
	ListChecklists(context.Context, string, string) ([]store.Checklist, error)
	GetChecklist(context.Context, string) (store.Checklist, error)
	InsertChecklist(context.Context, store.Checklist) (store.Checklist, error)
	UpdateChecklistName(context.Context, string, string) (store.Checklist, error)
	DeleteChecklist(context.Context, string) (bool, error)
	InsertItem(context.Context, string, string, string) (store.ChecklistItem, error)
	ListItems(context.Context, string) ([]store.ChecklistItem, error)
	GetItem(context.Context, string) (store.ChecklistItem, error)
	UpdateItem(context.Context, string, *string, *bool) (store.ChecklistItem, error)
	DeleteItem(context.Context, string) (bool, error)
	ReorderItems(context.Context, string, []string) ([]store.ChecklistItem, error)
	InsertAttachment(context.Context, store.TripAttachment) error
	ListAttachments(context.Context, string) ([]store.TripAttachment, error)
	GetAttachment(context.Context, string) (store.TripAttachment, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveSession(ctx context.Context, sessionHash, userID string, ttl time.Duration) error
	LookupSession(ctx context.Context, sessionHash string) (string, error)
	DeleteSession(ctx context.Context, sessionHash string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexTrip(t search.TripRecord)
	IndexItem(i search.ItemRecord)
	DeleteItem(id string)
	DeleteTrip(id string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   searchService
	authpw   *authpw.Service
	files    *storage.Service
	exporter *export.Service
	mail     *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchSvc searchService) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   searchSvc,
		authpw:   authpw.NewService(dataStore),
	}
	svc.exporter = export.NewService(&exportStore{store: svc.store})
	return svc
}

// AttachFiles enables attachment upload and download.
func (s *Service) AttachFiles(files *storage.Service) {
	s.files = files
}

// AttachMail enables invite emails.
func (s *Service) AttachMail(mail *email.Service) {
	s.mail = mail
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session backend. The checked flag is false when no
// backend is configured or it cannot report health.
func (s *Service) PingSessions(ctx context.Context) (bool, error) {
	pinger, ok := s.sessions.(interface{ Ping(context.Context) error })
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// Auth

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			return Session{}, conflict("Email already registered")
		}
		return Session{}, validationError(err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.authpw.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	session := Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         jti,
		ExpiresAt:   expiresAt,
	}

	if s.sessions != nil {
		sid := util.NewID("sid") + util.NewID("")
		if err := s.sessions.SaveSession(ctx, auth.HashToken(sid), user.ID, s.cfg.SessionTTL); err != nil {
			return Session{}, err
		}
		session.SessionID = sid
	}

	return session, nil
}

// SessionFromToken validates a bearer token and loads the current user.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

// SessionFromCookie looks up an opaque session ID in the session store.
func (s *Service) SessionFromCookie(ctx context.Context, sessionID string) (Session, error) {
	if s.sessions == nil {
		return Session{}, auth.ErrInvalidToken
	}
	userID, err := s.sessions.LookupSession(ctx, auth.HashToken(sessionID))
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		SessionID:   sessionID,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" || s.sessions == nil {
		return nil
	}
	return s.sessions.DeleteSession(ctx, auth.HashToken(sessionID))
}

// Trips

func (s *Service) CreateTrip(ctx context.Context, userID string, input CreateTripInput) (store.Trip, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Trip{}, validationError("name is required", nil)
	}

	trip := store.Trip{
		ID:          util.NewID("trip"),
		OwnerID:     userID,
		Name:        name,
		Destination: strings.TrimSpace(input.Destination),
		StartsOn:    input.StartsOn,
		EndsOn:      input.EndsOn,
	}
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		return store.Trip{}, err
	}

	if s.search != nil {
		s.search.IndexTrip(search.TripRecord{ID: trip.ID, Name: trip.Name, Destination: trip.Destination})
	}
	return trip, nil
}

func (s *Service) ListTrips(ctx context.Context, userID string) ([]store.Trip, error) {
	return s.store.ListTripsForUser(ctx, userID)
}

func (s *Service) GetTrip(ctx context.Context, userID, tripID string) (store.Trip, error) {
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return store.Trip{}, err
	}
	return s.store.GetTrip(ctx, tripID)
}

// InviteParticipant adds a registered user to a trip in invited status and
// sends them an invite email when SMTP is configured. Only the trip owner
// can invite.
func (s *Service) InviteParticipant(ctx context.Context, userID, tripID, inviteeEmail string) error {
	inviteeEmail = strings.TrimSpace(strings.ToLower(inviteeEmail))
	if inviteeEmail == "" {
		return validationError("email is required", nil)
	}

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.OwnerID != userID {
		return forbidden()
	}

	invitee, err := s.store.GetUserByEmail(ctx, inviteeEmail)
	if err != nil {
		return notFound("No account with that email")
	}
	if invitee.ID == trip.OwnerID {
		return validationError("owner is already a member", nil)
	}

	if err := s.store.AddParticipant(ctx, tripID, invitee.ID); err != nil {
		return err
	}

	if s.SMTPConfigured() {
		inviter, inviterErr := s.store.GetUserByID(ctx, userID)
		go func() {
			inviterName := "A fellow traveler"
			if inviterErr == nil {
				inviterName = inviter.DisplayName
			}
			_ = s.mail.SendTripInvite(inviteeEmail, inviterName, trip.Name, trip.Destination)
		}()
	}
	return nil
}

func (s *Service) AcceptInvite(ctx context.Context, userID, tripID string) error {
	accepted, err := s.store.AcceptParticipant(ctx, tripID, userID)
	if err != nil {
		return err
	}
	if !accepted {
		return notFound("No pending invite for this trip")
	}
	return nil
}

func (s *Service) ListParticipants(ctx context.Context, userID, tripID string) ([]store.TripParticipant, error) {
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, tripID)
}

// Checklists

func (s *Service) ListChecklists(ctx context.Context, userID, tripID string) ([]store.Checklist, error) {
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return nil, err
	}
	return s.store.ListChecklists(ctx, tripID, userID)
}

func (s *Service) CreateChecklist(ctx context.Context, userID, tripID string, input CreateChecklistInput) (store.Checklist, error) {
	if input.Type == "" {
		return store.Checklist{}, validationError("type is required", nil)
	}
	if input.Type != store.ChecklistTypePersonal && input.Type != store.ChecklistTypeGroup {
		return store.Checklist{}, validationError("type must be personal or group", nil)
	}
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return store.Checklist{}, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		if input.Type == store.ChecklistTypePersonal {
			name = "Personal checklist"
		} else {
			name = "Group checklist"
		}
	}

	checklist := store.Checklist{
		ID:     util.NewID("chk"),
		TripID: tripID,
		Name:   name,
		Type:   input.Type,
	}
	if input.Type == store.ChecklistTypePersonal {
		owner := userID
		checklist.OwnerID = &owner
	}

	created, err := s.store.InsertChecklist(ctx, checklist)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateChecklist) {
			return store.Checklist{}, conflict("Checklist already exists")
		}
		return store.Checklist{}, err
	}
	created.Items = []store.ChecklistItem{}
	return created, nil
}

func (s *Service) RenameChecklist(ctx context.Context, userID, checklistID, name string) (store.Checklist, error) {
	checklist, err := s.checklistForWrite(ctx, userID, checklistID)
	if err != nil {
		return store.Checklist{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return checklist, nil
	}
	return s.store.UpdateChecklistName(ctx, checklistID, name)
}

func (s *Service) DeleteChecklist(ctx context.Context, userID, checklistID string) error {
	if _, err := s.checklistForWrite(ctx, userID, checklistID); err != nil {
		return err
	}

	// The cascade delete removes the rows, so capture the item ids first to
	// de-index them afterwards.
	items, err := s.store.ListItems(ctx, checklistID)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteChecklist(ctx, checklistID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Checklist not found")
	}
	if s.search != nil {
		for _, item := range items {
			s.search.DeleteItem(item.ID)
		}
	}
	return nil
}

// Items

func (s *Service) AddItem(ctx context.Context, userID, checklistID, content string) (store.ChecklistItem, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.ChecklistItem{}, validationError("content is required", nil)
	}

	checklist, err := s.checklistForWrite(ctx, userID, checklistID)
	if err != nil {
		return store.ChecklistItem{}, err
	}

	item, err := s.store.InsertItem(ctx, util.NewID("itm"), checklistID, content)
	if err != nil {
		return store.ChecklistItem{}, err
	}

	s.indexItem(checklist, item)
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, input UpdateItemInput) (store.ChecklistItem, error) {
	if input.Content == nil && input.IsChecked == nil {
		return store.ChecklistItem{}, validationError("nothing to update", nil)
	}
	if input.Content != nil && strings.TrimSpace(*input.Content) == "" {
		return store.ChecklistItem{}, validationError("content cannot be empty", nil)
	}

	existing, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.ChecklistItem{}, err
	}
	checklist, err := s.checklistForWrite(ctx, userID, existing.ChecklistID)
	if err != nil {
		return store.ChecklistItem{}, err
	}

	item, err := s.store.UpdateItem(ctx, itemID, input.Content, input.IsChecked)
	if err != nil {
		return store.ChecklistItem{}, err
	}

	if input.Content != nil {
		s.indexItem(checklist, item)
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, userID, itemID string) error {
	existing, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.checklistForWrite(ctx, userID, existing.ChecklistID); err != nil {
		return err
	}

	deleted, err := s.store.DeleteItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Item not found")
	}
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	return nil
}

// ReorderItems replaces a checklist's ordering with the supplied sequence.
// The store validates the sequence against the current item set inside a
// transaction, so a concurrent add or delete makes the reorder fail instead
// of silently corrupting the ordering.
func (s *Service) ReorderItems(ctx context.Context, userID string, input ReorderInput) ([]store.ChecklistItem, error) {
	if strings.TrimSpace(input.ChecklistID) == "" {
		return nil, validationError("checklistId is required", nil)
	}
	if len(input.OrderedItemIDs) == 0 {
		return nil, validationError("orderedItemIds is required", nil)
	}

	if _, err := s.checklistForWrite(ctx, userID, input.ChecklistID); err != nil {
		return nil, err
	}

	items, err := s.store.ReorderItems(ctx, input.ChecklistID, input.OrderedItemIDs)
	if err != nil {
		if errors.Is(err, store.ErrOrderMismatch) {
			return nil, validationError("orderedItemIds must contain exactly the checklist's item IDs", nil)
		}
		return nil, err
	}
	return items, nil
}

// Search

func (s *Service) Search(ctx context.Context, userID string, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}

	trips, err := s.store.ListTripsForUser(ctx, userID)
	if err != nil {
		return search.Response{}, err
	}
	tripIDs := make([]string, 0, len(trips))
	for _, t := range trips {
		tripIDs = append(tripIDs, t.ID)
	}

	q.UserID = userID
	q.TripIDs = tripIDs
	return s.search.Search(q), nil
}

// Attachments

func (s *Service) UploadAttachment(ctx context.Context, userID, tripID, fileName, contentType string, body io.Reader, size int64) (store.TripAttachment, error) {
	if s.files == nil {
		return store.TripAttachment{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	if strings.TrimSpace(fileName) == "" {
		return store.TripAttachment{}, validationError("file name is required", nil)
	}
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return store.TripAttachment{}, err
	}

	attachment := store.TripAttachment{
		ID:          util.NewID("att"),
		TripID:      tripID,
		FileName:    fileName,
		ContentType: contentType,
		ObjectKey:   fmt.Sprintf("trips/%s/%s", tripID, util.NewID("obj")),
		UploadedBy:  userID,
	}

	written, err := s.files.Put(ctx, attachment.ObjectKey, body, size, contentType)
	if err != nil {
		return store.TripAttachment{}, err
	}
	attachment.SizeBytes = written

	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		_ = s.files.Remove(ctx, attachment.ObjectKey)
		return store.TripAttachment{}, err
	}
	return attachment, nil
}

func (s *Service) ListAttachments(ctx context.Context, userID, tripID string) ([]store.TripAttachment, error) {
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, tripID)
}

func (s *Service) OpenAttachment(ctx context.Context, userID, attachmentID string) (store.TripAttachment, io.ReadCloser, error) {
	if s.files == nil {
		return store.TripAttachment{}, nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return store.TripAttachment{}, nil, err
	}
	if err := s.requireTripMember(ctx, attachment.TripID, userID); err != nil {
		return store.TripAttachment{}, nil, err
	}
	body, err := s.files.Get(ctx, attachment.ObjectKey)
	if err != nil {
		return store.TripAttachment{}, nil, err
	}
	return attachment, body, nil
}

// Export

func (s *Service) ExportTrip(ctx context.Context, userID, tripID string, format export.Format) (*export.Result, error) {
	if format != export.FormatPDF && format != export.FormatDOCX {
		return nil, validationError("format must be pdf or docx", nil)
	}
	if err := s.requireTripMember(ctx, tripID, userID); err != nil {
		return nil, err
	}

	result, err := s.exporter.Export(ctx, export.Request{TripID: tripID, UserID: userID, Format: format})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependencies not installed", nil)
		}
		return nil, err
	}
	return result, nil
}

// helpers

func (s *Service) requireTripMember(ctx context.Context, tripID, userID string) error {
	member, err := s.store.IsTripMember(ctx, tripID, userID)
	if err != nil {
		return err
	}
	if !member {
		return forbidden()
	}
	return nil
}

// checklistForWrite loads a checklist and checks the caller may touch it.
// Someone else's personal checklist reads as not found so its existence is
// never revealed; a trip outsider hitting a group checklist gets forbidden.
func (s *Service) checklistForWrite(ctx context.Context, userID, checklistID string) (store.Checklist, error) {
	checklist, err := s.store.GetChecklist(ctx, checklistID)
	if err != nil {
		return store.Checklist{}, err
	}

	if checklist.Type == store.ChecklistTypePersonal {
		if checklist.OwnerID == nil || *checklist.OwnerID != userID {
			return store.Checklist{}, notFound("Checklist not found")
		}
	}
	if err := s.requireTripMember(ctx, checklist.TripID, userID); err != nil {
		return store.Checklist{}, err
	}
	return checklist, nil
}

func (s *Service) indexItem(checklist store.Checklist, item store.ChecklistItem) {
	if s.search == nil {
		return
	}
	owner := ""
	if checklist.OwnerID != nil {
		owner = *checklist.OwnerID
	}
	s.search.IndexItem(search.ItemRecord{
		ID:            item.ID,
		Content:       item.Content,
		ChecklistID:   checklist.ID,
		TripID:        checklist.TripID,
		ChecklistType: checklist.Type,
		OwnerID:       owner,
	})
}

// exportStore adapts the data store to the export package's view of a trip.
type exportStore struct {
	store dataStore
}

func (e *exportStore) GetTrip(ctx context.Context, id string) (export.TripInfo, error) {
	trip, err := e.store.GetTrip(ctx, id)
	if err != nil {
		return export.TripInfo{}, err
	}
	ownerName := ""
	if owner, err := e.store.GetUserByID(ctx, trip.OwnerID); err == nil {
		ownerName = owner.DisplayName
	}
	return export.TripInfo{
		ID:          trip.ID,
		Name:        trip.Name,
		Destination: trip.Destination,
		StartDate:   trip.StartsOn,
		EndDate:     trip.EndsOn,
		OwnerName:   ownerName,
	}, nil
}

func (e *exportStore) ListParticipants(ctx context.Context, tripID string) ([]export.ParticipantInfo, error) {
	participants, err := e.store.ListParticipants(ctx, tripID)
	if err != nil {
		return nil, err
	}
	out := make([]export.ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		out = append(out, export.ParticipantInfo{
			DisplayName: p.DisplayName,
			Email:       p.Email,
			Status:      p.Status,
		})
	}
	return out, nil
}

func (e *exportStore) ListChecklists(ctx context.Context, tripID, userID string) ([]export.ChecklistInfo, error) {
	checklists, err := e.store.ListChecklists(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]export.ChecklistInfo, 0, len(checklists))
	for _, c := range checklists {
		info := export.ChecklistInfo{Name: c.Name, Type: c.Type}
		for _, item := range c.Items {
			info.Items = append(info.Items, export.ItemInfo{Content: item.Content, IsChecked: item.IsChecked})
		}
		out = append(out, info)
	}
	return out, nil
}
