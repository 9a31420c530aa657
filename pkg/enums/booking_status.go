package enums

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

var bookingStatuses = domain[BookingStatus]{"booking status", []BookingStatus{
	BookingStatusPending, BookingStatusConfirmed, BookingStatusActive, BookingStatusCompleted, BookingStatusCancelled,
}}

// pending -> confirmed -> active -> completed; any open state may cancel.
var bookingGraph = graph[BookingStatus]{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusActive, BookingStatusCancelled},
	BookingStatusActive:    {BookingStatusCompleted, BookingStatusCancelled},
}

func (b BookingStatus) String() string { return string(b) }

func (b BookingStatus) IsValid() bool { return bookingStatuses.has(b) }

// IsTerminal reports whether the booking has no outgoing transitions.
func (b BookingStatus) IsTerminal() bool { return b.IsValid() && len(bookingGraph[b]) == 0 }

func (b BookingStatus) CanTransitionTo(next BookingStatus) bool { return bookingGraph.allows(b, next) }

func ParseBookingStatus(raw string) (BookingStatus, error) { return bookingStatuses.parse(raw) }
