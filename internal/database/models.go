package database

import "fmt"

// Subscription is a user's request to watch one trip (origin, destination,
// travel date) for departures inside a time window.
type Subscription struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`

	CityFromID string `db:"city_from_id"`
	CityToID   string `db:"city_to_id"`
	FromName   string `db:"from_name"`
	ToName     string `db:"to_name"`

	DateStr     string `db:"date_str"`      // DD.MM.YYYY
	DepFromHHMM string `db:"dep_from_hhmm"` // HH:MM
	DepToHHMM   string `db:"dep_to_hhmm"`   // HH:MM

	// LastHash is the fingerprint of the departures last reported to the user.
	LastHash string `db:"last_hash"`

	CreatedAt int64 `db:"created_at"` // unix seconds
	UpdatedAt int64 `db:"updated_at"` // unix seconds
}

// Meta keys shared by the checker and the /status command.
const (
	MetaLastCheckTS = "last_check_ts"
	MetaChecksCount = "checks_count"
)

// SubscriptionMetaPrefix returns the prefix of all meta keys owned by a subscription.
func SubscriptionMetaPrefix(subID int64) string {
	return fmt.Sprintf("sub:%d:", subID)
}

// LastReportKey is the meta key holding the unix time of the last report sent for a subscription.
func LastReportKey(subID int64) string {
	return SubscriptionMetaPrefix(subID) + "last_report_ts"
}

// Route renders the trip as "<date> <from>(<id>) → <to>(<id>)".
func (s Subscription) Route() string {
	return fmt.Sprintf("%s %s(%s) → %s(%s)", s.DateStr, s.FromName, s.CityFromID, s.ToName, s.CityToID)
}

// Window renders the departure window as "HH:MM–HH:MM".
func (s Subscription) Window() string {
	return s.DepFromHHMM + "–" + s.DepToHHMM
}

// Summary is the one-line description used in replies.
func (s Subscription) Summary() string {
	return s.Route() + " в " + s.Window()
}
