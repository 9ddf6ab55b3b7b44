package storage

import (
	"fmt"
	"time"

	"github.com/cyp0633/libschedule/schedule"
	"github.com/google/uuid"
)

const (
	floatingZone = "floating"
	// fixed width, so encoded values sort like the instants they hold
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	// zone column value for zones known only by their offset
	offsetLayout = "-07:00:00"
)

// EncodeTime splits t into a canonical UTC text form and the name of its
// zone. Equal instants always encode to the same text, so the text column can
// take part in unique keys and ORDER BY. A zone without a loadable name, such
// as the fixed offset time.Parse returns for "+05:00", is stored as its
// offset.
func EncodeTime(t time.Time) (value, zone string) {
	name := t.Location().String()
	switch {
	case schedule.IsNaive(t):
		zone = floatingZone
	case name == "UTC":
		zone = name
	case name == "" || !loadable(name):
		zone = t.Format(offsetLayout)
	default:
		zone = name
	}
	return t.UTC().Format(timeLayout), zone
}

func loadable(name string) bool {
	_, err := time.LoadLocation(name)
	return err == nil
}

// DecodeTime reverses EncodeTime.
func DecodeTime(value, zone string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	switch zone {
	case "", "UTC":
		return t.UTC(), nil
	case floatingZone:
		return t.In(schedule.Floating), nil
	}
	if zone[0] == '+' || zone[0] == '-' {
		off, err := time.Parse(offsetLayout, zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse zone offset %q: %w", zone, err)
		}
		_, seconds := off.Zone()
		return t.In(time.FixedZone("", seconds)), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load zone %q: %w", zone, err)
	}
	return t.In(loc), nil
}

// PrepareEvent validates ev and fills in its ID and timestamps before a
// backend stores it.
func PrepareEvent(ev *schedule.Event, creating bool) error {
	if ev == nil {
		return InvalidInput("nil event", nil)
	}
	if err := ev.Validate(); err != nil {
		return InvalidInput("invalid event", err)
	}
	if ev.ID == "" {
		if !creating {
			return InvalidInput("event has no ID", nil)
		}
		ev.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if creating && ev.CreatedOn.IsZero() {
		ev.CreatedOn = now
	}
	ev.UpdatedOn = now
	return nil
}

// PrepareOccurrence checks that occ can be saved and returns its event ID.
func PrepareOccurrence(occ *schedule.Occurrence) (string, error) {
	if occ == nil {
		return "", InvalidInput("nil occurrence", nil)
	}
	if occ.Event == nil || occ.Event.ID == "" {
		return "", InvalidInput("occurrence is not attached to a stored event", nil)
	}
	if !occ.End.After(occ.Start) {
		return "", InvalidInput("occurrence end is not after start", nil)
	}
	if !occ.OriginalEnd.After(occ.OriginalStart) {
		return "", InvalidInput("occurrence original end is not after original start", nil)
	}
	return occ.Event.ID, nil
}
