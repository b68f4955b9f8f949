package httpserver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// requiredKeys lists, per vendor, the payload keys its bot cannot even
// start without: the vehicle plate and the holder's document. The full
// field set each portal wants is the bot's business; ingress only
// rejects requests that could never produce a quote. Extra keys are
// always preserved for forward compatibility.
var requiredKeys = map[domain.Vendor][]string{
	domain.VendorHDI:       {"in_strNumDoc", "in_strPlaca"},
	domain.VendorSura:      {"in_strNumDoc", "in_strPlaca"},
	domain.VendorAXA:       {"in_strNumDoc", "in_strPlaca"},
	domain.VendorAllianz:   {"in_strNumDoc", "in_strPlaca"},
	domain.VendorBolivar:   {"in_strNumDoc", "in_strPlaca"},
	domain.VendorEquidad:   {"in_strNumDoc", "in_strPlaca"},
	domain.VendorMundial:   {"in_strNumDoc", "in_strPlaca"},
	domain.VendorSBS:       {"in_strNumDoc", "in_strPlaca"},
	domain.VendorSolidaria: {"in_strNumDoc", "in_strPlaca"},
	domain.VendorRUNT:      {"in_strNumDoc", "in_strPlaca", "in_strTipoDoc"},
}

// ValidatePayload checks the payload against the vendor's required
// keys. A required key must be present and hold a non-empty string.
// Returns nil when valid, otherwise an error wrapping ErrSchemaInvalid
// that names every missing key.
func ValidatePayload(v domain.Vendor, payload map[string]any) error {
	keys, ok := requiredKeys[v]
	if !ok {
		return nil
	}
	var missing []string
	for _, k := range keys {
		val, present := payload[k]
		if !present {
			missing = append(missing, k)
			continue
		}
		if s, isStr := val.(string); !isStr || s == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("campos requeridos faltantes o vacíos: %s: %w",
		strings.Join(missing, ", "), domain.ErrSchemaInvalid)
}
