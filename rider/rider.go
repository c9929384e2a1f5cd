package rider

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/internal/jsonb"
)

type Tier int

const (
	NoTier Tier = iota
	Bronze
	Silver
	Gold
)

func (t Tier) String() string {
	if t < NoTier || t > Gold {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return [...]string{"NoTier", "Bronze", "Silver", "Gold"}[t]
}

func ParseTier(s string) (Tier, error) {
	switch s {
	case "NoTier":
		return NoTier, nil
	case "Bronze":
		return Bronze, nil
	case "Silver":
		return Silver, nil
	case "Gold":
		return Gold, nil
	}
	return NoTier, fmt.Errorf("%w: tier %q", fault.ErrInvalidArgument, s)
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *Tier) Scan(i any) error {
	var s string
	switch v := i.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("tier: cannot scan %T", i)
	}
	v, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t Tier) Value() (driver.Value, error) {
	return t.String(), nil
}

// Timestamps is an append-only log stored as a JSONB array.
type Timestamps []time.Time

func (ts *Timestamps) Scan(src any) error {
	return jsonb.Scan(src, (*[]time.Time)(ts))
}

func (ts Timestamps) Value() (driver.Value, error) {
	if ts == nil {
		return jsonb.Value([]time.Time{})
	}
	return jsonb.Value([]time.Time(ts))
}

// Since counts the entries strictly after cutoff.
func (ts Timestamps) Since(cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

type Rider struct {
	ID                 string     `db:"id" firestore:"id" json:"id"`
	Auth0ID            string     `db:"auth0_id" firestore:"auth0Id" json:"-"`
	Name               string     `db:"name" firestore:"name" json:"name"`
	Email              string     `db:"email" firestore:"email" json:"email"`
	StripeID           *string    `db:"stripe_id" firestore:"stripeId" json:"-"`
	Tier               Tier       `db:"tier" firestore:"tier" json:"tier"`
	MissedReservations Timestamps `db:"missed_reservations" firestore:"missedReservations" json:"missedReservations"`
	CreatedAt          time.Time  `db:"created_at" firestore:"createdAt" json:"createdAt"`
}
