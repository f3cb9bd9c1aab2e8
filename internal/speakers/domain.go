// internal/speakers/domain.go
package speakers

// Speaker is a person in the speaker directory (Refname).
type Speaker struct {
	MembershipNumber string `json:"mnr"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	PostalCode       string `json:"postal_code,omitempty"`
	City             string `json:"city,omitempty"`
	// DistanceKM is set by listings relative to a postal code.
	DistanceKM *int   `json:"distance_km,omitempty"`
	Talks      []Talk `json:"talks"`
}

// Talk is one offered talk (Refpool).
type Talk struct {
	ID               int64  `json:"id"`
	MembershipNumber string `json:"mnr"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Location         string `json:"location,omitempty"`
	VideoLink        string `json:"video_link,omitempty"`
	Duration         *int   `json:"duration,omitempty"`
}

type SpeakerRequest struct {
	MembershipNumber string `json:"mnr" validate:"required,mnr"`
	FirstName        string `json:"first_name" validate:"required,max=100"`
	LastName         string `json:"last_name" validate:"required,max=100"`
	Email            string `json:"email" validate:"omitempty,email,max=255"`
	Phone            string `json:"phone" validate:"max=50"`
	PostalCode       string `json:"postal_code" validate:"omitempty,plz"`
	City             string `json:"city" validate:"max=100"`
}

type TalkRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
	Location    string `json:"location" validate:"max=255"`
	VideoLink   string `json:"video_link" validate:"omitempty,http_url,max=500"`
	Duration    *int   `json:"duration" validate:"omitempty,min=0,max=1440"`
}

// ListOptions narrows ListSpeakers. With FromPostalCode set every speaker
// gets a distance; MaxDistance > 0 drops speakers farther away or with no
// resolvable postal code.
type ListOptions struct {
	FromPostalCode string
	MaxDistance    int
}

// Coordinates of a postal code in degrees.
type Coordinates struct {
	Lat float64 `db:"lat"`
	Lon float64 `db:"lon"`
}
