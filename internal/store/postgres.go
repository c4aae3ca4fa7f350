package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateChecklist signals the partial unique index on personal
	// checklists rejected an insert.
	ErrDuplicateChecklist = errors.New("checklist already exists")
	// ErrOrderMismatch signals a reorder payload that is not a permutation
	// of the checklist's current item ids.
	ErrOrderMismatch = errors.New("ordered ids do not match checklist items")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}


func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, LOWER($2), $3, $4)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at, updated_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}


func (s *PostgresStore) CreateTrip(ctx context.Context, trip Trip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trips (id, owner_id, name, destination, starts_on, ends_on)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, trip.ID, trip.OwnerID, trip.Name, trip.Destination, trip.StartsOn, trip.EndsOn)
	if err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTrip(ctx context.Context, tripID string) (Trip, error) {
	var trip Trip
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, destination, starts_on, ends_on, created_at, updated_at
		FROM trips
		WHERE id = $1
	`, tripID).Scan(&trip.ID, &trip.OwnerID, &trip.Name, &trip.Destination, &trip.StartsOn, &trip.EndsOn, &trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		return Trip{}, err
	}
	return trip, nil
}

func (s *PostgresStore) ListTripsForUser(ctx context.Context, userID string) ([]Trip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.owner_id, t.name, t.destination, t.starts_on, t.ends_on, t.created_at, t.updated_at
		FROM trips t
		LEFT JOIN trip_participants tp ON tp.trip_id = t.id
		WHERE t.owner_id = $1 OR (tp.user_id = $1 AND tp.status = 'accepted')
		ORDER BY t.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	trips := make([]Trip, 0)
	for rows.Next() {
		var trip Trip
		if err := rows.Scan(&trip.ID, &trip.OwnerID, &trip.Name, &trip.Destination, &trip.StartsOn, &trip.EndsOn, &trip.CreatedAt, &trip.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	return trips, nil
}

// IsTripMember reports whether userID is the trip owner or an accepted
// participant. Every row-level permission check in the checklist module
// reduces to this plus the personal-checklist owner check.
func (s *PostgresStore) IsTripMember(ctx context.Context, tripID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM trips WHERE id = $1 AND owner_id = $2
			UNION ALL
			SELECT 1 FROM trip_participants WHERE trip_id = $1 AND user_id = $2 AND status = 'accepted'
		)
	`, tripID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check trip membership: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) AddParticipant(ctx context.Context, tripID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trip_participants (trip_id, user_id, status)
		VALUES ($1, $2, 'invited')
		ON CONFLICT (trip_id, user_id) DO NOTHING
	`, tripID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) AcceptParticipant(ctx context.Context, tripID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trip_participants
		SET status = 'accepted', accepted_at = NOW()
		WHERE trip_id = $1 AND user_id = $2 AND status = 'invited'
	`, tripID, userID)
	if err != nil {
		return false, fmt.Errorf("accept participant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept participant rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, tripID string) ([]TripParticipant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tp.trip_id, tp.user_id, tp.status, tp.invited_at, tp.accepted_at, u.email, u.display_name
		FROM trip_participants tp
		JOIN users u ON u.id = tp.user_id
		WHERE tp.trip_id = $1
		ORDER BY tp.invited_at ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]TripParticipant, 0)
	for rows.Next() {
		var p TripParticipant
		if err := rows.Scan(&p.TripID, &p.UserID, &p.Status, &p.InvitedAt, &p.AcceptedAt, &p.Email, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}


// ListChecklists returns the checklists userID may see for a trip: their own
// personal checklist plus every group checklist, items ordered by item_order.
func (s *PostgresStore) ListChecklists(ctx context.Context, tripID, userID string) ([]Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trip_id, owner_id, name, type, created_at, updated_at
		FROM checklists
		WHERE trip_id = $1 AND (type = 'group' OR owner_id = $2)
		ORDER BY created_at ASC
	`, tripID, userID)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	defer rows.Close()

	checklists := make([]Checklist, 0)
	index := map[string]int{}
	for rows.Next() {
		var c Checklist
		if err := rows.Scan(&c.ID, &c.TripID, &c.OwnerID, &c.Name, &c.Type, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		c.Items = make([]ChecklistItem, 0)
		index[c.ID] = len(checklists)
		checklists = append(checklists, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	if len(checklists) == 0 {
		return checklists, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.checklist_id, i.content, i.is_checked, i.item_order, i.created_at, i.updated_at
		FROM checklist_items i
		JOIN checklists c ON c.id = i.checklist_id
		WHERE c.trip_id = $1 AND (c.type = 'group' OR c.owner_id = $2)
		ORDER BY i.checklist_id, i.item_order ASC
	`, tripID, userID)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item ChecklistItem
		if err := itemRows.Scan(&item.ID, &item.ChecklistID, &item.Content, &item.IsChecked, &item.ItemOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		if at, ok := index[item.ChecklistID]; ok {
			checklists[at].Items = append(checklists[at].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist items: %w", err)
	}
	return checklists, nil
}

func (s *PostgresStore) GetChecklist(ctx context.Context, checklistID string) (Checklist, error) {
	var c Checklist
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trip_id, owner_id, name, type, created_at, updated_at
		FROM checklists
		WHERE id = $1
	`, checklistID).Scan(&c.ID, &c.TripID, &c.OwnerID, &c.Name, &c.Type, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Checklist{}, err
	}
	return c, nil
}

func (s *PostgresStore) InsertChecklist(ctx context.Context, c Checklist) (Checklist, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO checklists (id, trip_id, owner_id, name, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, c.ID, c.TripID, c.OwnerID, c.Name, c.Type).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Checklist{}, ErrDuplicateChecklist
		}
		return Checklist{}, fmt.Errorf("insert checklist: %w", err)
	}
	c.Items = make([]ChecklistItem, 0)
	return c, nil
}

func (s *PostgresStore) UpdateChecklistName(ctx context.Context, checklistID, name string) (Checklist, error) {
	var c Checklist
	err := s.db.QueryRowContext(ctx, `
		UPDATE checklists
		SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, trip_id, owner_id, name, type, created_at, updated_at
	`, checklistID, name).Scan(&c.ID, &c.TripID, &c.OwnerID, &c.Name, &c.Type, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Checklist{}, err
	}
	return c, nil
}

func (s *PostgresStore) DeleteChecklist(ctx context.Context, checklistID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM checklists WHERE id = $1`, checklistID)
	if err != nil {
		return false, fmt.Errorf("delete checklist: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checklist rows: %w", err)
	}
	return affected > 0, nil
}


// InsertItem appends to the end of the checklist: item_order is the current
// max plus one, or zero for an empty checklist.
func (s *PostgresStore) InsertItem(ctx context.Context, itemID, checklistID, content string) (ChecklistItem, error) {
	var item ChecklistItem
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO checklist_items (id, checklist_id, content, item_order)
		SELECT $1, $2, $3, COALESCE(MAX(item_order) + 1, 0)
		FROM checklist_items
		WHERE checklist_id = $2
		RETURNING id, checklist_id, content, is_checked, item_order, created_at, updated_at
	`, itemID, checklistID, content).Scan(&item.ID, &item.ChecklistID, &item.Content, &item.IsChecked, &item.ItemOrder, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return ChecklistItem{}, fmt.Errorf("insert checklist item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, checklistID string) ([]ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, checklist_id, content, is_checked, item_order, created_at, updated_at
		FROM checklist_items
		WHERE checklist_id = $1
		ORDER BY item_order ASC
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer rows.Close()

	items := make([]ChecklistItem, 0)
	for rows.Next() {
		var item ChecklistItem
		if err := rows.Scan(&item.ID, &item.ChecklistID, &item.Content, &item.IsChecked, &item.ItemOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (ChecklistItem, error) {
	var item ChecklistItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, checklist_id, content, is_checked, item_order, created_at, updated_at
		FROM checklist_items
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.ChecklistID, &item.Content, &item.IsChecked, &item.ItemOrder, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return ChecklistItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, itemID string, content *string, isChecked *bool) (ChecklistItem, error) {
	var item ChecklistItem
	err := s.db.QueryRowContext(ctx, `
		UPDATE checklist_items
		SET content = COALESCE($2, content),
		    is_checked = COALESCE($3, is_checked),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, checklist_id, content, is_checked, item_order, created_at, updated_at
	`, itemID, content, isChecked).Scan(&item.ID, &item.ChecklistID, &item.Content, &item.IsChecked, &item.ItemOrder, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return ChecklistItem{}, err
	}
	return item, nil
}

// DeleteItem removes the row and deliberately leaves a gap in item_order;
// compaction happens only through ReorderItems.
func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM checklist_items WHERE id = $1`, itemID)
	if err != nil {
		return false, fmt.Errorf("delete checklist item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checklist item rows: %w", err)
	}
	return affected > 0, nil
}

// ReorderItems rewrites item_order so that orderedIDs[i] gets order i. The
// current item set is locked and compared against orderedIDs inside the same
// transaction, and the rewrite is a single UPDATE, so concurrent readers see
// either the old complete ordering or the new one, never a mix.
func (s *PostgresStore) ReorderItems(ctx context.Context, checklistID string, orderedIDs []string) ([]ChecklistItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reorder tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM checklist_items WHERE checklist_id = $1 FOR UPDATE
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("lock checklist items: %w", err)
	}
	current := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		current[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate item ids: %w", err)
	}
	rows.Close()

	if len(orderedIDs) != len(current) {
		return nil, ErrOrderMismatch
	}
	seen := map[string]bool{}
	for _, id := range orderedIDs {
		if !current[id] || seen[id] {
			return nil, ErrOrderMismatch
		}
		seen[id] = true
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE checklist_items AS ci
		SET item_order = u.ord - 1, updated_at = NOW()
		FROM unnest($2::text[]) WITH ORDINALITY AS u(id, ord)
		WHERE ci.id = u.id AND ci.checklist_id = $1
	`, checklistID, orderedIDs); err != nil {
		return nil, fmt.Errorf("reorder checklist items: %w", err)
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT id, checklist_id, content, is_checked, item_order, created_at, updated_at
		FROM checklist_items
		WHERE checklist_id = $1
		ORDER BY item_order ASC
	`, checklistID)
	if err != nil {
		return nil, fmt.Errorf("reload checklist items: %w", err)
	}
	defer itemRows.Close()

	items := make([]ChecklistItem, 0, len(orderedIDs))
	for itemRows.Next() {
		var item ChecklistItem
		if err := itemRows.Scan(&item.ID, &item.ChecklistID, &item.Content, &item.IsChecked, &item.ItemOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reordered item: %w", err)
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reordered items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reorder tx: %w", err)
	}
	return items, nil
}


func (s *PostgresStore) InsertAttachment(ctx context.Context, a TripAttachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trip_attachments (id, trip_id, file_name, content_type, size_bytes, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.TripID, a.FileName, a.ContentType, a.SizeBytes, a.ObjectKey, a.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, tripID string) ([]TripAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trip_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM trip_attachments
		WHERE trip_id = $1
		ORDER BY created_at DESC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]TripAttachment, 0)
	for rows.Next() {
		var a TripAttachment
		if err := rows.Scan(&a.ID, &a.TripID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.ObjectKey, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return attachments, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (TripAttachment, error) {
	var a TripAttachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trip_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM trip_attachments
		WHERE id = $1
	`, attachmentID).Scan(&a.ID, &a.TripID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.ObjectKey, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		return TripAttachment{}, err
	}
	return a, nil
}
