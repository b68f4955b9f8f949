// Package domain holds the core types of the quote orchestrator: the
// vendor set, the job envelope and its wire codec, the error taxonomy
// with its classifier, and the handler contract workers dispatch to.
package domain

import (
	"fmt"
	"strings"
)

// Vendor identifies an insurance company. Values are lowercase tokens;
// ingress is case-insensitive and canonicalizes before anything else
// sees the value.
type Vendor string

// Supported vendors.
const (
	VendorHDI       Vendor = "hdi"
	VendorSura      Vendor = "sura"
	VendorAXA       Vendor = "axa"
	VendorAllianz   Vendor = "allianz"
	VendorBolivar   Vendor = "bolivar"
	VendorEquidad   Vendor = "equidad"
	VendorMundial   Vendor = "mundial"
	VendorSBS       Vendor = "sbs"
	VendorSolidaria Vendor = "solidaria"
	VendorRUNT      Vendor = "runt"
)

// Vendors lists every supported vendor in a stable order.
func Vendors() []Vendor {
	return []Vendor{
		VendorHDI, VendorSura, VendorAXA, VendorAllianz, VendorBolivar,
		VendorEquidad, VendorMundial, VendorSBS, VendorSolidaria, VendorRUNT,
	}
}

// ParseVendor canonicalizes a raw identifier to a Vendor. Unknown
// identifiers return ErrInvalidVendor wrapped with the offending value.
func ParseVendor(raw string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Vendors() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("vendor %q: %w", raw, ErrInvalidVendor)
}

func (v Vendor) String() string { return string(v) }

// Upper returns the uppercase form used in worker activity log lines.
func (v Vendor) Upper() string { return strings.ToUpper(string(v)) }
