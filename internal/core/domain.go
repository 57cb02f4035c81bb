package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FamilyTrip     TripType = "family"
	IndividualTrip TripType = "individual"

	TripActive   TripStatus = "active"
	TripInactive TripStatus = "inactive"
	TripArchived TripStatus = "archived"
)

type (
	TripType   string
	TripStatus string

	Date struct {
		time.Time
	}

	Trip struct {
		ID        int64
		Name      string
		StartDate Date
		Type      TripType
		Status    TripStatus
		CreatedAt time.Time
	}

	// Family is one participant unit of a trip: a household or a single
	// traveller. Members is its head count.
	Family struct {
		ID      int64
		TripID  int64
		Name    string
		Members int
	}

	Expense struct {
		ID          int64
		TripID      int64
		PayerID     int64
		PayerName   string // Filled by readers, ignored on write
		Description string
		Amount      Money
		Date        Date
	}

	ArchiveEntry struct {
		ID         int64
		TripName   string
		Path       string
		ArchivedAt time.Time
	}
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrNameTooLong      = errors.New("name too long (max 100 characters)")
	ErrInvalidTripType  = errors.New("invalid trip type")
	ErrInvalidMembers   = errors.New("number of members must be at least 1")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingTrip      = errors.New("missing trip")
	ErrMissingPayer     = errors.New("missing payer")
	ErrInvalidDate      = errors.New("invalid date")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
)

// IsValidationError reports whether err comes from one of the Validate
// methods in this package.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrEmptyName, ErrNameTooLong, ErrInvalidTripType, ErrInvalidMembers,
		ErrInvalidAmount, ErrEmptyDescription, ErrMissingTrip, ErrMissingPayer,
		ErrInvalidDate, ErrDescriptionLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (tt TripType) IsValid() bool {
	switch tt {
	case FamilyTrip, IndividualTrip:
		return true
	default:
		return false
	}
}

func (t Trip) Validate() error {
	if err := validateName(t.Name); err != nil {
		return err
	}
	if err := t.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if !t.Type.IsValid() {
		return ErrInvalidTripType
	}
	return nil
}

func (f Family) Validate() error {
	if f.TripID <= 0 {
		return ErrMissingTrip
	}
	if err := validateName(f.Name); err != nil {
		return err
	}
	if f.Members < 1 {
		return ErrInvalidMembers
	}
	return nil
}

func (e Expense) Validate() error {
	if e.TripID <= 0 {
		return ErrMissingTrip
	}
	if e.PayerID <= 0 {
		return ErrMissingPayer
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	return e.Date.Validate()
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > 100 {
		return ErrNameTooLong
	}
	return nil
}
