package patient

import (
	"fmt"
)

// Header is the first row of the store file. Column order is fixed.
var Header = []string{"name", "email", "password", "role", "uid", "conditions", "prescriptions"}

const (
	colName = iota
	colEmail
	colPassword
	colRole
	colUID
	colConditions
	colPrescriptions
	numCols
)

// Serialize converts a record into a store row in Header order. The list
// columns are joined with ListSeparator, so entries that themselves contain
// a comma will not survive a round trip. An empty list is written as an
// empty column and reads back as [""].
func Serialize(r *Record) []string {
	row := make([]string, numCols)
	row[colName] = r.Name
	row[colEmail] = r.Email
	row[colPassword] = r.Credential
	row[colRole] = string(r.Role)
	row[colUID] = r.UID
	row[colConditions] = JoinList(r.Conditions)
	row[colPrescriptions] = JoinList(r.Prescriptions)
	return row
}

// Deserialize is the inverse of Serialize. The role column selects the
// admin or patient variant; anything else is treated as a corrupt row.
func Deserialize(row []string) (*Record, error) {
	if len(row) != numCols {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrStorage, numCols, len(row))
	}
	role := Role(row[colRole])
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q for %s", ErrStorage, row[colRole], row[colEmail])
	}
	return &Record{
		Name:          row[colName],
		Email:         row[colEmail],
		Credential:    row[colPassword],
		Role:          role,
		UID:           row[colUID],
		Conditions:    SplitList(row[colConditions]),
		Prescriptions: SplitList(row[colPrescriptions]),
	}, nil
}

// checkHeader verifies that a store file starts with the expected columns.
func checkHeader(row []string) error {
	if len(row) != len(Header) {
		return fmt.Errorf("%w: header has %d columns, want %d", ErrStorage, len(row), len(Header))
	}
	for i, col := range Header {
		if row[i] != col {
			return fmt.Errorf("%w: header column %d is %q, want %q", ErrStorage, i, row[i], col)
		}
	}
	return nil
}
