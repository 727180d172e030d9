package syncer

import (
	"regexp"
	"strings"

	"skyreg/internal/registry"
)

var hexCode = regexp.MustCompile(`^[0-9A-F]{6}$`)

// fieldKeys maps each canonical attribute to an ordered list of candidate
// header names. The first non-empty match wins, which keeps ingestion
// tolerant to upstream header drift without a strict schema.
var fieldKeys = map[string][]string{
	"registration":    {"N-NUMBER", "N NUMBER", "NNUMBER", "REGISTRATION", "TAIL NUMBER"},
	"serial_number":   {"SERIAL NUMBER", "SERIALNUMBER", "SERIAL"},
	"mfr_mdl_code":    {"MFR MDL CODE", "MFR MDL", "MODEL CODE"},
	"eng_mfr_mdl":     {"ENG MFR MDL", "ENG MFR MDL CODE", "ENGINE CODE"},
	"year_mfr":        {"YEAR MFR", "YEAR MANUFACTURED", "YEAR"},
	"registrant_name": {"NAME", "REGISTRANT NAME", "OWNER"},
	"street":          {"STREET", "STREET1", "ADDRESS"},
	"city":            {"CITY"},
	"state":           {"STATE"},
	"zip_code":        {"ZIP CODE", "ZIPCODE", "ZIP"},
	"country":         {"COUNTRY", "COUNTRY MAIL"},
	"status_code":     {"STATUS CODE", "STATUS"},
	"mode_s_hex":      {"MODE S CODE HEX", "MODE S HEX", "MODE S CODE"},
	"cert_issue_date": {"CERT ISSUE DATE", "CERTIFICATE ISSUE DATE", "ISSUE DATE"},
	"expiration_date": {"EXPIRATION DATE", "EXPIRATION"},
	"unique_id":       {"UNIQUE ID", "UNIQUE REGULATORY ID", "ID"},
}

// normalizeHeader trims whitespace, strips a UTF-8 byte order mark and
// case-folds a raw header cell so lookups are exact.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToUpper(strings.TrimSpace(h))
}

// pick returns the first non-empty value among the candidate keys.
func pick(raw map[string]string, attr string) string {
	for _, key := range fieldKeys[attr] {
		if v := strings.TrimSpace(raw[key]); v != "" {
			return v
		}
	}
	return ""
}

// mapAircraft converts one header-normalized raw record into a canonical
// record. It reports false when the mandatory registration code is missing;
// such records are skipped, not fatal.
func mapAircraft(raw map[string]string) (registry.Aircraft, bool) {
	reg := strings.ToUpper(pick(raw, "registration"))
	if reg == "" {
		return registry.Aircraft{}, false
	}

	hex := strings.ToUpper(pick(raw, "mode_s_hex"))
	if !hexCode.MatchString(hex) {
		hex = ""
	}

	return registry.Aircraft{
		Registration:   reg,
		SerialNumber:   pick(raw, "serial_number"),
		MfrMdlCode:     pick(raw, "mfr_mdl_code"),
		EngMfrMdlCode:  pick(raw, "eng_mfr_mdl"),
		YearMfr:        pick(raw, "year_mfr"),
		RegistrantName: pick(raw, "registrant_name"),
		Street:         pick(raw, "street"),
		City:           pick(raw, "city"),
		State:          pick(raw, "state"),
		ZipCode:        pick(raw, "zip_code"),
		Country:        pick(raw, "country"),
		StatusCode:     pick(raw, "status_code"),
		ModeSHex:       hex,
		CertIssueDate:  pick(raw, "cert_issue_date"),
		ExpirationDate: pick(raw, "expiration_date"),
		UniqueID:       pick(raw, "unique_id"),
	}, true
}
