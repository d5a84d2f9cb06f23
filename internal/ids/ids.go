// Package ids implements the global identifier value objects used across
// the domain model: GSRN (metering points), GLN (grid-participant
// identifiers), and the two mutually exclusive customer identifier shapes.
package ids

import (
	"errors"
	"regexp"
)

var (
	// ErrInvalidGSRN is returned when a GSRN fails format validation.
	ErrInvalidGSRN = errors.New("ids: invalid gsrn")
	// ErrInvalidGLN is returned when a grid-participant identifier fails
	// format validation.
	ErrInvalidGLN = errors.New("ids: invalid gln")
	// ErrInvalidPersonalNumber is returned when a personal number fails
	// format validation.
	ErrInvalidPersonalNumber = errors.New("ids: invalid personal number")
	// ErrInvalidCompanyNumber is returned when a company number fails
	// format validation.
	ErrInvalidCompanyNumber = errors.New("ids: invalid company number")
)

var (
	digitsRe18 = regexp.MustCompile(`^[0-9]{18}$`)
	digitsRe13 = regexp.MustCompile(`^[0-9]{13}$`)
	digitsRe10 = regexp.MustCompile(`^[0-9]{10}$`)
	digitsRe8  = regexp.MustCompile(`^[0-9]{8}$`)
)

// GSRN is the 18-digit global identifier of a metering point.
type GSRN string

// NewGSRN validates and constructs a GSRN.
func NewGSRN(value string) (GSRN, error) {
	if !digitsRe18.MatchString(value) {
		return "", ErrInvalidGSRN
	}
	return GSRN(value), nil
}

// String returns the raw digit string.
func (g GSRN) String() string { return string(g) }

// GLN is the 13-digit grid-participant identifier of a market actor
// (supplier, grid company, market operator).
type GLN string

// NewGLN validates and constructs a GLN.
func NewGLN(value string) (GLN, error) {
	if !digitsRe13.MatchString(value) {
		return "", ErrInvalidGLN
	}
	return GLN(value), nil
}

// String returns the raw digit string.
func (g GLN) String() string { return string(g) }

// PersonalNumber is a 10-digit personal identifier.
type PersonalNumber string

// NewPersonalNumber validates and constructs a PersonalNumber.
func NewPersonalNumber(value string) (PersonalNumber, error) {
	if !digitsRe10.MatchString(value) {
		return "", ErrInvalidPersonalNumber
	}
	return PersonalNumber(value), nil
}

// String returns the raw digit string.
func (p PersonalNumber) String() string { return string(p) }

// CompanyNumber is an 8-digit company identifier.
type CompanyNumber string

// NewCompanyNumber validates and constructs a CompanyNumber.
func NewCompanyNumber(value string) (CompanyNumber, error) {
	if !digitsRe8.MatchString(value) {
		return "", ErrInvalidCompanyNumber
	}
	return CompanyNumber(value), nil
}

// String returns the raw digit string.
func (c CompanyNumber) String() string { return string(c) }

// CustomerIdentity holds exactly one of PersonalNumber or CompanyNumber,
// never both.
type CustomerIdentity struct {
	personal  PersonalNumber
	company   CompanyNumber
	isCompany bool
}

// NewPersonalIdentity builds a customer identity backed by a personal number.
func NewPersonalIdentity(value string) (CustomerIdentity, error) {
	p, err := NewPersonalNumber(value)
	if err != nil {
		return CustomerIdentity{}, err
	}
	return CustomerIdentity{personal: p}, nil
}

// NewCompanyIdentity builds a customer identity backed by a company number.
func NewCompanyIdentity(value string) (CustomerIdentity, error) {
	c, err := NewCompanyNumber(value)
	if err != nil {
		return CustomerIdentity{}, err
	}
	return CustomerIdentity{company: c, isCompany: true}, nil
}

// IsCompany reports whether this identity is backed by a company number.
func (c CustomerIdentity) IsCompany() bool { return c.isCompany }

// PersonalNumber returns the personal number, valid only when !IsCompany().
func (c CustomerIdentity) PersonalNumber() PersonalNumber { return c.personal }

// CompanyNumber returns the company number, valid only when IsCompany().
func (c CustomerIdentity) CompanyNumber() CompanyNumber { return c.company }

// String returns whichever identifier is set.
func (c CustomerIdentity) String() string {
	if c.isCompany {
		return string(c.company)
	}
	return string(c.personal)
}
