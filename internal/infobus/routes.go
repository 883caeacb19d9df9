package infobus

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// RouteQuery identifies a trip to look up.
type RouteQuery struct {
	CityFromID string
	CityToID   string
	FromName   string
	ToName     string
	Date       string // DD.MM.YYYY
}

// RoutesResponse is the subset of the get_routes payload the bot reads.
type RoutesResponse struct {
	Status FlexBool `json:"status"`
	Routes []Route  `json:"routes"`
}

// OK reports whether the server marked the response as successful.
func (r *RoutesResponse) OK() bool {
	return r != nil && bool(r.Status)
}

// Route is one offered connection.
type Route struct {
	ClearDepTime FlexString `json:"ClearDepTime"`
	ClearArrTime FlexString `json:"ClearArrTime"`
	Price        FlexString `json:"price"`
	Rating       FlexString `json:"rating"`
}

// Departure is a route reduced to what gets shown to users.
type Departure struct {
	Depart string // HH:MM
	Arrive string // HH:MM
	Price  string // EUR
	Rating string
}

// ExtractTimes flattens a get_routes response into departures sorted by
// departure time. Compact "HHMM" times are rewritten as "HH:MM".
func ExtractTimes(resp *RoutesResponse) []Departure {
	if !resp.OK() {
		return nil
	}

	out := make([]Departure, 0, len(resp.Routes))
	for _, r := range resp.Routes {
		out = append(out, Departure{
			Depart: formatClock(string(r.ClearDepTime)),
			Arrive: formatClock(string(r.ClearArrTime)),
			Price:  string(r.Price),
			Rating: string(r.Rating),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depart < out[j].Depart })
	return out
}

// formatClock rewrites a compact "HHMM" value as "HH:MM". Anything that is
// not exactly four ASCII digits is returned as is.
func formatClock(s string) string {
	if len(s) != 4 {
		return s
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s
		}
	}
	return s[:2] + ":" + s[2:]
}

// FlexString is a string that also accepts a JSON number or bool and
// keeps its text.
// null decodes to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// FlexBool is a bool decoded with the truthiness the site's own frontend relies on:
// true, a non-zero number, or a non-empty string other than "0"/"false".
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*f = false
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = s != "" && s != "0" && s != "false"
	case bytes.Equal(b, []byte("true")):
		*f = true
	case bytes.Equal(b, []byte("false")):
		*f = false
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			// objects and arrays count as set
			*f = true
			return nil
		}
		*f = n != 0
	}
	return nil
}
