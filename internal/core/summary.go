package core

// Criteria is the value tuple that identifies a saved bill when it has no id.
type Criteria struct {
	Month    string
	Year     int
	Floor    Floor
	Total    float64
	BillDate Date
}

// Criteria returns the bill's matching tuple.
func (b Bill) Criteria() Criteria {
	return Criteria{
		Month:    b.Month,
		Year:     b.Year,
		Floor:    b.Floor,
		Total:    b.Total,
		BillDate: b.BillDate,
	}
}

// Matches reports whether every field of the tuple equals the bill's.
func (b Bill) Matches(c Criteria) bool {
	return b.Month == c.Month &&
		b.Year == c.Year &&
		b.Floor == c.Floor &&
		SameAmount(b.Total, c.Total) &&
		b.BillDate.Equal(c.BillDate.Time)
}
