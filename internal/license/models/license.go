package models

import (
	"fmt"
	"strings"
	"time"

	dErrors "downloadgate/pkg/domain-errors"
	pstrings "downloadgate/pkg/platform/strings"
)

// ExpiryLayout is the calendar-date format of the expiry column.
const ExpiryLayout = "2006-01-02"

// LicenseType is an extensible enumeration; unknown values read from the
// store are carried through unchanged.
type LicenseType string

const (
	LicenseTypeFull  LicenseType = "Full"
	LicenseTypeLite  LicenseType = "Lite"
	LicenseTypeTrial LicenseType = "Trial"
)

// IsKnown reports whether t is one of the built-in license types.
func (t LicenseType) IsKnown() bool {
	switch t {
	case LicenseTypeFull, LicenseTypeLite, LicenseTypeTrial:
		return true
	}
	return false
}

// ParseLicenseType normalises case for the known types.
func ParseLicenseType(s string) (LicenseType, error) {
	s = strings.TrimSpace(s)
	for _, t := range []LicenseType{LicenseTypeFull, LicenseTypeLite, LicenseTypeTrial} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown license type %q", s))
}

// License is a record in the license store. Immutable from the gateway's side.
type License struct {
	Key            string
	Organization   string
	Type           LicenseType
	Products       []string
	Expiry         time.Time // 00:00:00 UTC of the expiry date
	SupportContact string
}

// ParseExpiry reads a YYYY-MM-DD date as midnight UTC.
func ParseExpiry(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ExpiryLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "expiry must be YYYY-MM-DD")
	}
	return t, nil
}

// NewLicense builds a License with invariant checks. Used by the admin tool.
func NewLicense(key, organization string, licenseType LicenseType, expiry string, products []string, supportContact string) (*License, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "license key cannot be empty")
	}
	if strings.TrimSpace(organization) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization cannot be empty")
	}
	if licenseType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "license type cannot be empty")
	}
	exp, err := ParseExpiry(expiry)
	if err != nil {
		return nil, err
	}
	return &License{
		Key:            key,
		Organization:   strings.TrimSpace(organization),
		Type:           licenseType,
		Products:       pstrings.DedupeAndTrim(products),
		Expiry:         exp,
		SupportContact: strings.TrimSpace(supportContact),
	}, nil
}

// ExpiredAt compares against an instant, not a date, so the result does not
// depend on the caller's timezone.
func (l *License) ExpiredAt(now time.Time) bool {
	return !now.UTC().Before(l.Expiry)
}

// Profile returns the client-facing view of the license.
func (l *License) Profile() *Profile {
	products := make([]string, len(l.Products))
	copy(products, l.Products)
	return &Profile{
		Key:            l.Key,
		Organization:   l.Organization,
		Type:           l.Type,
		Products:       products,
		Expiry:         l.Expiry,
		SupportContact: l.SupportContact,
	}
}

// Profile is a validated license as seen by sessions and entitlement checks.
type Profile struct {
	Key            string
	Organization   string
	Type           LicenseType
	Products       []string
	Expiry         time.Time
	SupportContact string
}

// HasProducts reports whether every required product is in the profile.
// An empty requirement is satisfied by any profile.
func (p *Profile) HasProducts(required []string) bool {
	if len(required) == 0 {
		return true
	}
	owned := make(map[string]struct{}, len(p.Products))
	for _, prod := range p.Products {
		owned[prod] = struct{}{}
	}
	for _, r := range required {
		if _, ok := owned[r]; !ok {
			return false
		}
	}
	return true
}

// ExpiryDate formats the expiry as YYYY-MM-DD.
func (p *Profile) ExpiryDate() string {
	return p.Expiry.Format(ExpiryLayout)
}
