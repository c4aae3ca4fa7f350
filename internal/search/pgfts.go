package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// memberFilter restricts trips to those the user owns or participates in.
const memberFilter = `(t.owner_id = $2 OR EXISTS (
	SELECT 1 FROM trip_participants tp
	WHERE tp.trip_id = t.id AND tp.user_id = $2 AND tp.status = 'accepted'
))`

// Search executes a UNION ALL query across trips and checklist items using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Visibility is
// enforced in SQL: only trips the caller belongs to, and only group items or
// the caller's own personal items.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.UserID}
	argN := 3

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultTrip {
		tripWhere := "t.fts @@ " + tsQuery + " AND " + memberFilter
		if q.FilterTripID != "" {
			tripWhere += fmt.Sprintf(" AND t.id = $%d", argN)
			args = append(args, q.FilterTripID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'trip'::text AS type, t.id, t.name AS title,
				ts_headline('english', coalesce(t.destination, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.id AS trip_id, ''::text AS checklist_id,
				ts_rank(t.fts, %s) AS rank
			FROM trips t
			WHERE %s`, tsQuery, tsQuery, tripWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultItem {
		itemWhere := "i.fts @@ " + tsQuery +
			" AND (c.type = 'group' OR c.owner_id = $2) AND " + memberFilter
		if q.FilterTripID != "" {
			itemWhere += fmt.Sprintf(" AND t.id = $%d", argN)
			args = append(args, q.FilterTripID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'item'::text AS type, i.id,
				ts_headline('english', coalesce(i.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS title,
				''::text AS snippet,
				t.id AS trip_id, c.id AS checklist_id,
				ts_rank(i.fts, %s) AS rank
			FROM checklist_items i
			JOIN checklists c ON c.id = i.checklist_id
			JOIN trips t ON t.id = c.trip_id
			WHERE %s`, tsQuery, tsQuery, itemWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, trip_id, checklist_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		var checklistID string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.TripID, &checklistID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		if checklistID != "" {
			r.ChecklistID = checklistID
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}
