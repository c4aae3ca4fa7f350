package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"wayfare/api/internal/authpw"
	"wayfare/api/internal/config"
	"wayfare/api/internal/search"
	"wayfare/api/internal/store"
)

type fakeStore struct {
	createUserFn          func(context.Context, store.User) error
	getUserByEmailFn      func(context.Context, string) (store.User, error)
	getUserByIDFn         func(context.Context, string) (store.User, error)
	createTripFn          func(context.Context, store.Trip) error
	getTripFn             func(context.Context, string) (store.Trip, error)
	listTripsForUserFn    func(context.Context, string) ([]store.Trip, error)
	isTripMemberFn        func(context.Context, string, string) (bool, error)
	addParticipantFn      func(context.Context, string, string) error
	acceptParticipantFn   func(context.Context, string, string) (bool, error)
	listParticipantsFn    func(context.Context, string) ([]store.TripParticipant, error)
	listChecklistsFn      func(context.Context, string, string) ([]store.Checklist, error)
	getChecklistFn        func(context.Context, string) (store.Checklist, error)
	insertChecklistFn     func(context.Context, store.Checklist) (store.Checklist, error)
	updateChecklistNameFn func(context.Context, string, string) (store.Checklist, error)
	deleteChecklistFn     func(context.Context, string) (bool, error)
	insertItemFn          func(context.Context, string, string, string) (store.ChecklistItem, error)
	listItemsFn           func(context.Context, string) ([]store.ChecklistItem, error)
	getItemFn             func(context.Context, string) (store.ChecklistItem, error)
	updateItemFn          func(context.Context, string, *string, *bool) (store.ChecklistItem, error)
	deleteItemFn          func(context.Context, string) (bool, error)
	reorderItemsFn        func(context.Context, string, []string) ([]store.ChecklistItem, error)
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, Email: "user@example.com", DisplayName: "user"}, nil
}
func (f *fakeStore) CreateTrip(ctx context.Context, trip store.Trip) error {
	if f.createTripFn != nil {
		return f.createTripFn(ctx, trip)
	}
	return nil
}
func (f *fakeStore) GetTrip(ctx context.Context, tripID string) (store.Trip, error) {
	if f.getTripFn != nil {
		return f.getTripFn(ctx, tripID)
	}
	return store.Trip{}, sql.ErrNoRows
}
func (f *fakeStore) ListTripsForUser(ctx context.Context, userID string) ([]store.Trip, error) {
	if f.listTripsForUserFn != nil {
		return f.listTripsForUserFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) IsTripMember(ctx context.Context, tripID, userID string) (bool, error) {
	if f.isTripMemberFn != nil {
		return f.isTripMemberFn(ctx, tripID, userID)
	}
	return true, nil
}
func (f *fakeStore) AddParticipant(ctx context.Context, tripID, userID string) error {
	if f.addParticipantFn != nil {
		return f.addParticipantFn(ctx, tripID, userID)
	}
	return nil
}
func (f *fakeStore) AcceptParticipant(ctx context.Context, tripID, userID string) (bool, error) {
	if f.acceptParticipantFn != nil {
		return f.acceptParticipantFn(ctx, tripID, userID)
	}
	return true, nil
}
func (f *fakeStore) ListParticipants(ctx context.Context, tripID string) ([]store.TripParticipant, error) {
	if f.listParticipantsFn != nil {
		return f.listParticipantsFn(ctx, tripID)
	}
	return nil, nil
}
func (f *fakeStore) ListChecklists(ctx context.Context, tripID, userID string) ([]store.Checklist, error) {
	if f.listChecklistsFn != nil {
		return f.listChecklistsFn(ctx, tripID, userID)
	}
	return nil, nil
}
func (f *fakeStore) GetChecklist(ctx context.Context, checklistID string) (store.Checklist, error) {
	if f.getChecklistFn != nil {
		return f.getChecklistFn(ctx, checklistID)
	}
	return store.Checklist{}, sql.ErrNoRows
}
func (f *fakeStore) InsertChecklist(ctx context.Context, c store.Checklist) (store.Checklist, error) {
	if f.insertChecklistFn != nil {
		return f.insertChecklistFn(ctx, c)
	}
	return c, nil
}
func (f *fakeStore) UpdateChecklistName(ctx context.Context, checklistID, name string) (store.Checklist, error) {
	if f.updateChecklistNameFn != nil {
		return f.updateChecklistNameFn(ctx, checklistID, name)
	}
	return store.Checklist{ID: checklistID, Name: name}, nil
}
func (f *fakeStore) DeleteChecklist(ctx context.Context, checklistID string) (bool, error) {
	if f.deleteChecklistFn != nil {
		return f.deleteChecklistFn(ctx, checklistID)
	}
	return true, nil
}
func (f *fakeStore) InsertItem(ctx context.Context, itemID, checklistID, content string) (store.ChecklistItem, error) {
	if f.insertItemFn != nil {
		return f.insertItemFn(ctx, itemID, checklistID, content)
	}
	return store.ChecklistItem{ID: itemID, ChecklistID: checklistID, Content: content}, nil
}
func (f *fakeStore) ListItems(ctx context.Context, checklistID string) ([]store.ChecklistItem, error) {
	if f.listItemsFn != nil {
		return f.listItemsFn(ctx, checklistID)
	}
	return nil, nil
}
func (f *fakeStore) GetItem(ctx context.Context, itemID string) (store.ChecklistItem, error) {
	if f.getItemFn != nil {
		return f.getItemFn(ctx, itemID)
	}
	return store.ChecklistItem{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateItem(ctx context.Context, itemID string, content *string, isChecked *bool) (store.ChecklistItem, error) {
	if f.updateItemFn != nil {
		return f.updateItemFn(ctx, itemID, content, isChecked)
	}
	return store.ChecklistItem{ID: itemID}, nil
}
func (f *fakeStore) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	if f.deleteItemFn != nil {
		return f.deleteItemFn(ctx, itemID)
	}
	return true, nil
}
func (f *fakeStore) ReorderItems(ctx context.Context, checklistID string, orderedIDs []string) ([]store.ChecklistItem, error) {
	if f.reorderItemsFn != nil {
		return f.reorderItemsFn(ctx, checklistID, orderedIDs)
	}
	return nil, nil
}
func (f *fakeStore) InsertAttachment(context.Context, store.TripAttachment) error { return nil }
func (f *fakeStore) ListAttachments(context.Context, string) ([]store.TripAttachment, error) {
	return nil, nil
}
func (f *fakeStore) GetAttachment(context.Context, string) (store.TripAttachment, error) {
	return store.TripAttachment{}, sql.ErrNoRows
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	saved   map[string]string
	deleted []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: make(map[string]string)}
}

func (f *fakeSessions) SaveSession(_ context.Context, sessionHash, userID string, _ time.Duration) error {
	f.saved[sessionHash] = userID
	return nil
}
func (f *fakeSessions) LookupSession(_ context.Context, sessionHash string) (string, error) {
	userID, ok := f.saved[sessionHash]
	if !ok {
		return "", errors.New("session not found")
	}
	return userID, nil
}
func (f *fakeSessions) DeleteSession(_ context.Context, sessionHash string) error {
	f.deleted = append(f.deleted, sessionHash)
	delete(f.saved, sessionHash)
	return nil
}

type fakeSearch struct {
	indexedItems []search.ItemRecord
	deletedItems []string
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (f *fakeSearch) IndexTrip(search.TripRecord) {}
func (f *fakeSearch) IndexItem(i search.ItemRecord) {
	f.indexedItems = append(f.indexedItems, i)
}
func (f *fakeSearch) DeleteItem(id string) {
	f.deletedItems = append(f.deletedItems, id)
}
func (f *fakeSearch) DeleteTrip(string) {}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			SessionSecret: "test-secret",
			AccessTTL:     time.Hour,
			SessionTTL:    24 * time.Hour,
			CookieName:    "wayfare_session",
		},
		store:    fs,
		sessions: newFakeSessions(),
		authpw:   authpw.NewService(fs),
	}
}

func strPtr(s string) *string { return &s }

func TestCreateChecklistRequiresType(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateChecklist(context.Background(), "user-1", "trip-1", CreateChecklistInput{})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 400 || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 VALIDATION_ERROR, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestCreateChecklistPersonalSetsOwner(t *testing.T) {
	var inserted store.Checklist
	fs := &fakeStore{
		insertChecklistFn: func(_ context.Context, c store.Checklist) (store.Checklist, error) {
			inserted = c
			return c, nil
		},
	}
	svc := newTestService(fs)

	checklist, err := svc.CreateChecklist(context.Background(), "user-1", "trip-1", CreateChecklistInput{Type: "personal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inserted.OwnerID == nil || *inserted.OwnerID != "user-1" {
		t.Fatalf("expected owner user-1, got %v", inserted.OwnerID)
	}
	if inserted.Name != "Personal checklist" {
		t.Fatalf("expected default name, got %q", inserted.Name)
	}
	if checklist.Items == nil || len(checklist.Items) != 0 {
		t.Fatalf("expected empty items slice, got %v", checklist.Items)
	}
}

func TestCreateChecklistGroupHasNoOwner(t *testing.T) {
	var inserted store.Checklist
	fs := &fakeStore{
		insertChecklistFn: func(_ context.Context, c store.Checklist) (store.Checklist, error) {
			inserted = c
			return c, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CreateChecklist(context.Background(), "user-1", "trip-1", CreateChecklistInput{Type: "group", Name: "Groceries"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted.OwnerID != nil {
		t.Fatalf("group checklist must have no owner, got %v", *inserted.OwnerID)
	}
	if inserted.Name != "Groceries" {
		t.Fatalf("expected name Groceries, got %q", inserted.Name)
	}
}

func TestCreateChecklistDuplicatePersonalConflicts(t *testing.T) {
	fs := &fakeStore{
		insertChecklistFn: func(_ context.Context, c store.Checklist) (store.Checklist, error) {
			return store.Checklist{}, store.ErrDuplicateChecklist
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateChecklist(context.Background(), "user-1", "trip-1", CreateChecklistInput{Type: "personal"})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 409 || domainErr.Code != "CONFLICT" {
		t.Fatalf("expected 409 CONFLICT, got %d %s", domainErr.Status, domainErr.Code)
	}
	if domainErr.Message != "Checklist already exists" {
		t.Fatalf("expected message %q, got %q", "Checklist already exists", domainErr.Message)
	}
}

func TestCreateChecklistOutsiderForbidden(t *testing.T) {
	fs := &fakeStore{
		isTripMemberFn: func(_ context.Context, tripID, userID string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateChecklist(context.Background(), "outsider", "trip-1", CreateChecklistInput{Type: "group"})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestOthersPersonalChecklistReadsAsNotFound(t *testing.T) {
	fs := &fakeStore{
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			return store.Checklist{
				ID:      checklistID,
				TripID:  "trip-1",
				Type:    store.ChecklistTypePersonal,
				OwnerID: strPtr("someone-else"),
			}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.RenameChecklist(context.Background(), "user-1", "chk-1", "New name")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 404 {
		t.Fatalf("someone else's personal checklist must read as 404, got %d", domainErr.Status)
	}
}

func TestGroupChecklistOutsiderForbidden(t *testing.T) {
	fs := &fakeStore{
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			return store.Checklist{ID: checklistID, TripID: "trip-1", Type: store.ChecklistTypeGroup}, nil
		},
		isTripMemberFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteChecklist(context.Background(), "outsider", "chk-1")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestAddItemRequiresContent(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.AddItem(context.Background(), "user-1", "chk-1", "   ")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 400 {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestAddItemIndexesContent(t *testing.T) {
	owner := "user-1"
	fs := &fakeStore{
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			return store.Checklist{
				ID: checklistID, TripID: "trip-1",
				Type: store.ChecklistTypePersonal, OwnerID: &owner,
			}, nil
		},
		insertItemFn: func(_ context.Context, itemID, checklistID, content string) (store.ChecklistItem, error) {
			return store.ChecklistItem{ID: itemID, ChecklistID: checklistID, Content: content, ItemOrder: 2}, nil
		},
	}
	svc := newTestService(fs)
	fsearch := &fakeSearch{}
	svc.search = fsearch

	item, err := svc.AddItem(context.Background(), "user-1", "chk-1", "Passport")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ItemOrder != 2 {
		t.Fatalf("expected item order from store, got %d", item.ItemOrder)
	}
	if len(fsearch.indexedItems) != 1 {
		t.Fatalf("expected item indexed once, got %d", len(fsearch.indexedItems))
	}
	if fsearch.indexedItems[0].OwnerID != "user-1" || fsearch.indexedItems[0].ChecklistType != "personal" {
		t.Fatalf("index record missing visibility fields: %+v", fsearch.indexedItems[0])
	}
}

func TestReorderValidatesInput(t *testing.T) {
	svc := newTestService(&fakeStore{})

	for name, input := range map[string]ReorderInput{
		"missing checklist": {OrderedItemIDs: []string{"itm-1"}},
		"missing ids":       {ChecklistID: "chk-1"},
	} {
		_, err := svc.ReorderItems(context.Background(), "user-1", input)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != 400 {
			t.Fatalf("%s: expected 400, got %v", name, err)
		}
	}
}

func TestReorderDelegatesToSingleStoreCall(t *testing.T) {
	owner := "user-1"
	calls := 0
	fs := &fakeStore{
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			return store.Checklist{ID: checklistID, TripID: "trip-1", Type: store.ChecklistTypePersonal, OwnerID: &owner}, nil
		},
		reorderItemsFn: func(_ context.Context, checklistID string, orderedIDs []string) ([]store.ChecklistItem, error) {
			calls++
			items := make([]store.ChecklistItem, len(orderedIDs))
			for i, id := range orderedIDs {
				items[i] = store.ChecklistItem{ID: id, ChecklistID: checklistID, ItemOrder: i}
			}
			return items, nil
		},
	}
	svc := newTestService(fs)

	items, err := svc.ReorderItems(context.Background(), "user-1", ReorderInput{
		ChecklistID:    "chk-1",
		OrderedItemIDs: []string{"itm-2", "itm-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("reorder must be a single store call, got %d", calls)
	}
	if items[0].ID != "itm-2" || items[0].ItemOrder != 0 {
		t.Fatalf("expected itm-2 first at order 0, got %+v", items[0])
	}
	if items[1].ID != "itm-1" || items[1].ItemOrder != 1 {
		t.Fatalf("expected itm-1 second at order 1, got %+v", items[1])
	}
}

func TestReorderMismatchMapsToValidationError(t *testing.T) {
	owner := "user-1"
	fs := &fakeStore{
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			return store.Checklist{ID: checklistID, TripID: "trip-1", Type: store.ChecklistTypePersonal, OwnerID: &owner}, nil
		},
		reorderItemsFn: func(context.Context, string, []string) ([]store.ChecklistItem, error) {
			return nil, store.ErrOrderMismatch
		},
	}
	svc := newTestService(fs)

	_, err := svc.ReorderItems(context.Background(), "user-1", ReorderInput{
		ChecklistID:    "chk-1",
		OrderedItemIDs: []string{"itm-1", "itm-1"},
	})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 400 || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 VALIDATION_ERROR, got %d %s", domainErr.Status, domainErr.Code)
	}
}

func TestReorderAbsentChecklistNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.ReorderItems(context.Background(), "user-1", ReorderInput{
		ChecklistID:    "chk-missing",
		OrderedItemIDs: []string{"itm-1"},
	})

	status, _, _, _ := mapError(err)
	if status != 404 {
		t.Fatalf("expected 404 for absent checklist, got %d (%v)", status, err)
	}
}

func TestDeleteItemRemovesFromIndex(t *testing.T) {
	owner := "user-1"
	fs := &fakeStore{
		getItemFn: func(_ context.Context, itemID string) (store.ChecklistItem, error) {
			return store.ChecklistItem{ID: itemID, ChecklistID: "chk-1"}, nil
		},
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			return store.Checklist{ID: checklistID, TripID: "trip-1", Type: store.ChecklistTypePersonal, OwnerID: &owner}, nil
		},
	}
	svc := newTestService(fs)
	fsearch := &fakeSearch{}
	svc.search = fsearch

	if err := svc.DeleteItem(context.Background(), "user-1", "itm-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fsearch.deletedItems) != 1 || fsearch.deletedItems[0] != "itm-1" {
		t.Fatalf("expected itm-1 removed from index, got %v", fsearch.deletedItems)
	}
}

func TestDeleteChecklistRemovesItemsFromIndex(t *testing.T) {
	owner := "user-1"
	fs := &fakeStore{
		getChecklistFn: func(_ context.Context, checklistID string) (store.Checklist, error) {
			// Single-row load, no items attached.
			return store.Checklist{ID: checklistID, TripID: "trip-1", Type: store.ChecklistTypePersonal, OwnerID: &owner}, nil
		},
		listItemsFn: func(_ context.Context, checklistID string) ([]store.ChecklistItem, error) {
			return []store.ChecklistItem{
				{ID: "itm-1", ChecklistID: checklistID, ItemOrder: 0},
				{ID: "itm-2", ChecklistID: checklistID, ItemOrder: 1},
			}, nil
		},
	}
	svc := newTestService(fs)
	fsearch := &fakeSearch{}
	svc.search = fsearch

	if err := svc.DeleteChecklist(context.Background(), "user-1", "chk-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fsearch.deletedItems) != 2 || fsearch.deletedItems[0] != "itm-1" || fsearch.deletedItems[1] != "itm-2" {
		t.Fatalf("expected itm-1 and itm-2 removed from index, got %v", fsearch.deletedItems)
	}
}

func TestUpdateItemRejectsEmptyPatch(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.UpdateItem(context.Background(), "user-1", "itm-1", UpdateItemInput{})

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 400 {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestInviteParticipantOnlyOwner(t *testing.T) {
	fs := &fakeStore{
		getTripFn: func(_ context.Context, tripID string) (store.Trip, error) {
			return store.Trip{ID: tripID, OwnerID: "owner-1"}, nil
		},
	}
	svc := newTestService(fs)

	err := svc.InviteParticipant(context.Background(), "not-owner", "trip-1", "friend@example.com")

	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestSearchScopesToCallersTrips(t *testing.T) {
	fs := &fakeStore{
		listTripsForUserFn: func(_ context.Context, userID string) ([]store.Trip, error) {
			return []store.Trip{{ID: "trip-1"}, {ID: "trip-2"}}, nil
		},
	}
	svc := newTestService(fs)

	var captured search.Query
	svc.search = &capturingSearch{onSearch: func(q search.Query) {
		captured = q
	}}

	if _, err := svc.Search(context.Background(), "user-1", search.Query{Text: "passport"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected query scoped to user-1, got %q", captured.UserID)
	}
	if len(captured.TripIDs) != 2 {
		t.Fatalf("expected both trips in scope, got %v", captured.TripIDs)
	}
}

type capturingSearch struct {
	fakeSearch
	onSearch func(search.Query)
}

func (c *capturingSearch) Search(q search.Query) search.Response {
	c.onSearch(q)
	return search.Response{Results: []search.Result{}}
}
