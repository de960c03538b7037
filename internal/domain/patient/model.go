package patient

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the capability tier of a record.
type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleAdmin
}

// ListSeparator joins and splits the conditions and prescriptions lists.
const ListSeparator = ","

// Record maps to one row of the patient store. Admin and patient records
// share this shape; Role decides what the holder may do.
type Record struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Credential    string   `json:"-"`
	Role          Role     `json:"role"`
	UID           string   `json:"uid"`
	Conditions    []string `json:"conditions"`
	Prescriptions []string `json:"prescriptions"`
}

func (r *Record) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// CheckCredential compares in plaintext, case-sensitive.
func (r *Record) CheckCredential(credential string) bool {
	return r.Credential == credential
}

// Clone returns a deep copy so callers never share list backing arrays
// with the store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Conditions = append([]string(nil), r.Conditions...)
	c.Prescriptions = append([]string(nil), r.Prescriptions...)
	return &c
}

// SplitList splits raw form input into list entries. Entries are not
// trimmed and an empty input yields a single empty entry.
func SplitList(raw string) []string {
	return strings.Split(raw, ListSeparator)
}

// JoinList is the inverse of SplitList for entries without a separator.
func JoinList(items []string) string {
	return strings.Join(items, ListSeparator)
}

// NewUID returns a short random token for a new record.
func NewUID() string {
	return uuid.New().String()[:8]
}
