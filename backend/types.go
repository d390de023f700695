package backend

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Month is a calendar month, written YYYY-MM.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether m is the zero Month.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Start returns midnight UTC on the first day of m.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Prev returns the month before m.
func (m Month) Prev() Month { return MonthOf(m.Start().AddDate(0, -1, 0)) }

// Next returns the month after m.
func (m Month) Next() Month { return MonthOf(m.Start().AddDate(0, 1, 0)) }

// MarshalText implements encoding.TextMarshaler.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Project is a staffed event or engagement.
type Project struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Client    string    `json:"client" yaml:"client"`
	Location  string    `json:"location,omitempty" yaml:"location"`
	Status    string    `json:"status" yaml:"status"`
	StartDate time.Time `json:"start_date" yaml:"start_date"`
	EndDate   time.Time `json:"end_date" yaml:"end_date"`
	Headcount int       `json:"headcount" yaml:"headcount"`
}

// Overlaps reports whether the project runs on any day of m.
func (p Project) Overlaps(m Month) bool {
	start := m.Start()
	end := m.Next().Start()
	return p.StartDate.Before(end) && !p.EndDate.Before(start)
}

// Candidate is a person who can be staffed on projects.
type Candidate struct {
	ID        string   `json:"id" yaml:"id"`
	FirstName string   `json:"first_name" yaml:"first_name"`
	LastName  string   `json:"last_name" yaml:"last_name"`
	Email     string   `json:"email" yaml:"email"`
	City      string   `json:"city,omitempty" yaml:"city"`
	Status    string   `json:"status" yaml:"status"`
	Skills    []string `json:"skills,omitempty" yaml:"skills"`
}

// CandidateFilter narrows a candidate listing. Empty fields match everything.
type CandidateFilter struct {
	Status string `json:"status,omitempty"`
	City   string `json:"city,omitempty"`
	Skill  string `json:"skill,omitempty"`
}

// Query encodes f as URL query parameters.
func (f CandidateFilter) Query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.City != "" {
		q.Set("city", f.City)
	}
	if f.Skill != "" {
		q.Set("skill", f.Skill)
	}
	return q
}

// CandidateFilterFromQuery is the inverse of Query.
func CandidateFilterFromQuery(q url.Values) CandidateFilter {
	return CandidateFilter{Status: q.Get("status"), City: q.Get("city"), Skill: q.Get("skill")}
}

// Match reports whether c passes f. Comparisons ignore case.
func (f CandidateFilter) Match(c Candidate) bool {
	if f.Status != "" && !strings.EqualFold(f.Status, c.Status) {
		return false
	}
	if f.City != "" && !strings.EqualFold(f.City, c.City) {
		return false
	}
	if f.Skill != "" && !slices.ContainsFunc(c.Skills, func(s string) bool { return strings.EqualFold(s, f.Skill) }) {
		return false
	}
	return true
}

// BatchStatus is the lifecycle state of a payment batch.
type BatchStatus string

// Payment batch states.
const (
	BatchDraft     BatchStatus = "draft"
	BatchSubmitted BatchStatus = "submitted"
	BatchPaid      BatchStatus = "paid"
)

// PaymentBatch groups the payments for one project and month.
type PaymentBatch struct {
	ID         string      `json:"id" yaml:"id"`
	ProjectID  string      `json:"project_id" yaml:"project_id"`
	Month      Month       `json:"month" yaml:"month"`
	Status     BatchStatus `json:"status" yaml:"status"`
	Payments   int         `json:"payments" yaml:"payments"`
	TotalCents int64       `json:"total_cents" yaml:"total_cents"`
	Currency   string      `json:"currency" yaml:"currency"`
	CreatedAt  time.Time   `json:"created_at" yaml:"created_at"`
}
