package dto

// ListFilter captures the query parameters accepted by GET /contractors.
type ListFilter struct {
	Q         string
	Location  string
	MinRating *float64
	Phone     string
	Sort      string
	Page      int
	PerPage   int
	Limit     int
}
