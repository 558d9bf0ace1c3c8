package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Floor3rd Floor = "3RD"
	Floor4th Floor = "4TH"
	Floor5th Floor = "5TH"
	Floor6th Floor = "6TH"
)

// Field names accepted by Bill.SetField. They match the serialized keys.
const (
	FieldFloor       = "floor"
	FieldMonth       = "month"
	FieldYear        = "year"
	FieldBillDate    = "billDate"
	FieldRent        = "rent"
	FieldElectricity = "electricity"
	FieldGas         = "gas"
	FieldWater       = "water"
	FieldGarbage     = "garbage"
	FieldService     = "service"
	FieldTotal       = "total"
)

type (
	Floor string

	Date struct {
		time.Time
	}

	// Bill is one month's invoice for one floor.
	Bill struct {
		ID          string
		Floor       Floor
		Month       string
		Year        int
		BillDate    Date
		Rent        Charge
		Electricity Charge
		Gas         Charge
		Water       Charge
		Garbage     Charge
		Service     Charge
		Total       float64
		SavedAt     time.Time
	}
)

var (
	// Floors lists the selectable floor labels in display order.
	Floors = []Floor{Floor3rd, Floor4th, Floor5th, Floor6th}

	// Months lists the selectable month names in calendar order.
	Months = []string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}

	// ChargeFields lists the charge field names in invoice order.
	ChargeFields = []string{FieldRent, FieldElectricity, FieldGas, FieldWater, FieldGarbage, FieldService}

	// FormFields lists every field the draft form edits, in form order.
	FormFields = []string{
		FieldFloor, FieldRent, FieldElectricity, FieldGas, FieldWater, FieldGarbage,
		FieldService, FieldMonth, FieldYear, FieldBillDate,
	}
)

var (
	ErrUnknownField = errors.New("unknown bill field")
	ErrInvalidFloor = errors.New("invalid floor")
	ErrInvalidMonth = errors.New("invalid month")
	ErrInvalidYear  = errors.New("invalid year")
	ErrInvalidDate  = errors.New("invalid bill date")
)

// NewDraft returns the bill the create flow starts from.
func NewDraft() Bill {
	b := Bill{
		Floor:       Floor6th,
		Month:       "August",
		Year:        2025,
		BillDate:    NewDate(2025, 8, 1),
		Rent:        "50000",
		Electricity: "1625",
		Gas:         "1080",
		Water:       "817",
		Garbage:     "500",
		Service:     "6000",
	}
	b.RecomputeTotal()
	return b
}

// IsValid reports whether f is one of the known floor labels.
func (f Floor) IsValid() bool {
	for _, v := range Floors {
		if v == f {
			return true
		}
	}
	return false
}

// IsMonth reports whether name is one of the twelve month names.
func IsMonth(name string) bool {
	for _, m := range Months {
		if m == name {
			return true
		}
	}
	return false
}

// SetField updates a single field from its raw form value. Charge fields are
// stored exactly as typed and the total is recomputed before returning.
func (b *Bill) SetField(name, value string) error {
	switch name {
	case FieldFloor:
		f := Floor(strings.TrimSpace(value))
		if !f.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidFloor, value)
		}
		b.Floor = f
	case FieldMonth:
		m := strings.TrimSpace(value)
		if !IsMonth(m) {
			return fmt.Errorf("%w: %q", ErrInvalidMonth, value)
		}
		b.Month = m
	case FieldYear:
		y, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidYear, value)
		}
		b.Year = y
	case FieldBillDate:
		d, err := ParseDate(value)
		if err != nil {
			return err
		}
		b.BillDate = d
	default:
		c := b.charge(name)
		if c == nil {
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		*c = Charge(value)
		b.RecomputeTotal()
	}
	return nil
}

// FieldValue is one raw form value for SetFields.
type FieldValue struct {
	Name  string
	Value string
}

// SetFields applies every value or none: on the first invalid field the bill
// is left unchanged and that field's error is returned.
func (b *Bill) SetFields(fields ...FieldValue) error {
	next := *b
	for _, f := range fields {
		if err := next.SetField(f.Name, f.Value); err != nil {
			return err
		}
	}
	*b = next
	return nil
}

// Field returns the raw display value of a form field.
func (b Bill) Field(name string) string {
	switch name {
	case FieldFloor:
		return string(b.Floor)
	case FieldMonth:
		return b.Month
	case FieldYear:
		return strconv.Itoa(b.Year)
	case FieldBillDate:
		return b.BillDate.String()
	case FieldTotal:
		return FormatAmount(b.Total)
	}
	if c := b.charge(name); c != nil {
		return string(*c)
	}
	return ""
}

func (b *Bill) charge(name string) *Charge {
	switch name {
	case FieldRent:
		return &b.Rent
	case FieldElectricity:
		return &b.Electricity
	case FieldGas:
		return &b.Gas
	case FieldWater:
		return &b.Water
	case FieldGarbage:
		return &b.Garbage
	case FieldService:
		return &b.Service
	}
	return nil
}

// Charges returns the six charges in invoice order.
func (b Bill) Charges() []Charge {
	return []Charge{b.Rent, b.Electricity, b.Gas, b.Water, b.Garbage, b.Service}
}

// RecomputeTotal sets Total from the current charges.
func (b *Bill) RecomputeTotal() {
	b.Total = Total(b.Charges()...)
}

// PeriodKey is the "<month> <year>" grouping key.
func (b Bill) PeriodKey() string {
	return fmt.Sprintf("%s %d", b.Month, b.Year)
}

// ExportFilename is the download name of the bill's PNG export.
func (b Bill) ExportFilename() string {
	return fmt.Sprintf("bill-%s-%d-%s.png", b.Month, b.Year, b.Floor)
}

// Equal reports full field equality.
func (b Bill) Equal(o Bill) bool {
	return b.ID == o.ID &&
		b.Floor == o.Floor &&
		b.Month == o.Month &&
		b.Year == o.Year &&
		b.BillDate.Equal(o.BillDate.Time) &&
		b.Rent == o.Rent &&
		b.Electricity == o.Electricity &&
		b.Gas == o.Gas &&
		b.Water == o.Water &&
		b.Garbage == o.Garbage &&
		b.Service == o.Service &&
		SameAmount(b.Total, o.Total) &&
		b.SavedAt.Equal(o.SavedAt)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// billJSON is the persisted shape. Year is raw because records written by the
// browser form carry it as a string once edited. A non-finite total is written
// as null and read back recomputed from the charges.
type billJSON struct {
	ID          string          `json:"id,omitempty"`
	Floor       Floor           `json:"floor"`
	Month       string          `json:"month"`
	Year        json.RawMessage `json:"year"`
	BillDate    Date            `json:"billDate"`
	Rent        Charge          `json:"rent"`
	Electricity Charge          `json:"electricity"`
	Gas         Charge          `json:"gas"`
	Water       Charge          `json:"water"`
	Garbage     Charge          `json:"garbage"`
	Service     Charge          `json:"service"`
	Total       *float64        `json:"total"`
	SavedAt     *time.Time      `json:"savedAt,omitempty"`
}

func (b Bill) MarshalJSON() ([]byte, error) {
	out := billJSON{
		ID:          b.ID,
		Floor:       b.Floor,
		Month:       b.Month,
		Year:        json.RawMessage(strconv.Itoa(b.Year)),
		BillDate:    b.BillDate,
		Rent:        b.Rent,
		Electricity: b.Electricity,
		Gas:         b.Gas,
		Water:       b.Water,
		Garbage:     b.Garbage,
		Service:     b.Service,
	}
	if IsFinite(b.Total) {
		t := b.Total
		out.Total = &t
	}
	if !b.SavedAt.IsZero() {
		t := b.SavedAt
		out.SavedAt = &t
	}
	return json.Marshal(out)
}

func (b *Bill) UnmarshalJSON(data []byte) error {
	var in billJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = Bill{
		ID:          in.ID,
		Floor:       in.Floor,
		Month:       in.Month,
		Year:        parseYear(in.Year),
		BillDate:    in.BillDate,
		Rent:        in.Rent,
		Electricity: in.Electricity,
		Gas:         in.Gas,
		Water:       in.Water,
		Garbage:     in.Garbage,
		Service:     in.Service,
	}
	if in.Total != nil {
		b.Total = *in.Total
	} else {
		b.RecomputeTotal()
	}
	if in.SavedAt != nil {
		b.SavedAt = *in.SavedAt
	}
	return nil
}

// parseYear accepts a number or a numeric string; anything else reads as 0.
func parseYear(raw json.RawMessage) int {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
	}
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return y
}
