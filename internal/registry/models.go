// Package registry holds the canonical aircraft registry model. Records are
// owned by the synchronizer (write side) and read by the resolver.
package registry

import (
	"strings"
	"time"
)

// KeyKind selects which derived key a store lookup uses.
type KeyKind string

const (
	KeyRegistration KeyKind = "registration"
	KeyModeSHex     KeyKind = "mode_s_hex"
)

// Aircraft is one canonical registry record, keyed by its normalized
// registration code. The full record set is always the product of exactly one
// completed sync generation.
type Aircraft struct {
	Registration  string
	SerialNumber  string
	MfrMdlCode    string
	EngMfrMdlCode string
	YearMfr       string
	RegistrantName string
	Street        string
	City          string
	State         string
	ZipCode       string
	Country       string
	StatusCode    string
	// ModeSHex is the 6-hex-digit transponder code, empty when unassigned.
	ModeSHex       string
	CertIssueDate  string
	ExpirationDate string
	UniqueID       string
}

// SyncMetadata describes the last completed sync. It is mutated only at the
// end of a successful run; a failed run leaves the previous value in place.
type SyncMetadata struct {
	SourceURL    string    `json:"sourceUrl"`
	Version      string    `json:"version"`
	SyncedAt     time.Time `json:"syncedAt"`
	TotalRecords int64     `json:"totalRecords"`
}

// Progress is the in-memory cursor of a running sync.
type Progress struct {
	Records   int64     `json:"records"`
	StartedAt time.Time `json:"startedAt"`
}

// Summary is the resolver-facing view of a record, whichever tier produced it.
type Summary struct {
	Registration string `json:"registration"`
	ModeSHex     string `json:"modeSHex,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Model        string `json:"model,omitempty"`
	Owner        string `json:"owner,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	Status       string `json:"status,omitempty"`
	Source       string `json:"source"`
}

// Summarize converts a canonical record into the resolver-facing view.
func (a *Aircraft) Summarize() *Summary {
	return &Summary{
		Registration: a.Registration,
		ModeSHex:     strings.ToUpper(a.ModeSHex),
		SerialNumber: a.SerialNumber,
		Model:        a.MfrMdlCode,
		Owner:        a.RegistrantName,
		City:         a.City,
		State:        a.State,
		Country:      a.Country,
		Status:       a.StatusCode,
		Source:       "registry",
	}
}
