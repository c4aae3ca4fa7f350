package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetTrip(ctx context.Context, id string) (TripInfo, error)
	ListParticipants(ctx context.Context, tripID string) ([]ParticipantInfo, error)
	ListChecklists(ctx context.Context, tripID, userID string) ([]ChecklistInfo, error)
}

// Service provides trip export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format. Checklists are
// filtered to what the requesting user can see: all group checklists
// plus their own personal ones.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	trip, err := s.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}

	participants, err := s.store.ListParticipants(ctx, req.TripID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	checklists, err := s.store.ListChecklists(ctx, req.TripID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}

	data := TemplateData{
		Name:         trip.Name,
		Destination:  trip.Destination,
		Dates:        formatDateRange(trip.StartDate, trip.EndDate),
		OwnerName:    trip.OwnerName,
		GeneratedAt:  time.Now(),
		Participants: participants,
		Checklists:   checklists,
	}

	html, err := RenderTripHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, trip.Name)
	case FormatDOCX:
		return exportDOCX(html, trip.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func formatDateRange(start, end *time.Time) string {
	const layout = "Jan 2, 2006"
	switch {
	case start != nil && end != nil:
		return start.Format(layout) + " to " + end.Format(layout)
	case start != nil:
		return "From " + start.Format(layout)
	case end != nil:
		return "Until " + end.Format(layout)
	default:
		return ""
	}
}
