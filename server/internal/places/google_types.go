package places

// Wire types for the Places Details web service. Only the fields this
// service reads are declared.

type detailsResponse struct {
	Status           string       `json:"status"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	HTMLAttributions []string     `json:"html_attributions"`
	Result           *placeResult `json:"result,omitempty"`
}

type placeResult struct {
	PlaceID              string        `json:"place_id"`
	Name                 string        `json:"name"`
	FormattedAddress     string        `json:"formatted_address"`
	FormattedPhoneNumber *string       `json:"formatted_phone_number,omitempty"`
	Website              *string       `json:"website,omitempty"`
	Geometry             *geometry     `json:"geometry,omitempty"`
	Rating               *float64      `json:"rating,omitempty"`
	UserRatingsTotal     *int          `json:"user_ratings_total,omitempty"`
	OpeningHours         *openingHours `json:"opening_hours,omitempty"`
	Photos               []photo       `json:"photos,omitempty"`
	Reviews              []review      `json:"reviews,omitempty"`
	Types                []string      `json:"types,omitempty"`
}

type geometry struct {
	Location location `json:"location"`
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type openingHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

type photo struct {
	Height         int    `json:"height"`
	Width          int    `json:"width"`
	PhotoReference string `json:"photo_reference"`
}

type review struct {
	AuthorName string `json:"author_name"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
}
