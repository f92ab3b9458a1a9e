package patient

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrNameRequired  = errors.New("patient name is required")
	ErrAgeRequired   = errors.New("patient age is required")
	ErrAgeNotNumeric = errors.New("patient age must be a whole number")
)

// Record is the intake form as submitted. Only Name and Age are enforced.
type Record struct {
	Name         string `json:"name"`
	GuardianName string `json:"guardianName"`
	Age          string `json:"age"`
	Contact      string `json:"contact"`
}

// NewRecord trims the submitted fields and returns a record, or the first
// validation error. No record is produced when validation fails.
func NewRecord(name, guardianName, age, contact string) (Record, error) {
	r := Record{
		Name:         strings.TrimSpace(name),
		GuardianName: strings.TrimSpace(guardianName),
		Age:          strings.TrimSpace(age),
		Contact:      strings.TrimSpace(contact),
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (r Record) Validate() error {
	if r.Name == "" {
		return ErrNameRequired
	}
	if r.Age == "" {
		return ErrAgeRequired
	}
	if n, err := strconv.Atoi(r.Age); err != nil || n < 0 {
		return ErrAgeNotNumeric
	}
	return nil
}
