package geo

// acceptableTypes are the geocode result types precise enough to walk
// to. A bare postal code or other administrative area is rejected so
// riders supply a real address; the zip-pair match query depends on it.
var acceptableTypes = map[string]struct{}{
	"street_address":    {},
	"intersection":      {},
	"neighborhood":      {},
	"premise":           {},
	"subpremise":        {},
	"natural_feature":   {},
	"airport":           {},
	"park":              {},
	"point_of_interest": {},
}

// IsAcceptable reports whether a geocode result is precise enough to
// use as a pickup or destination. Pure: same input, same verdict.
func IsAcceptable(r *Result) bool {
	if r == nil || len(r.Types) == 0 {
		return false
	}
	for _, t := range r.Types {
		if _, ok := acceptableTypes[t]; ok {
			return true
		}
	}
	return false
}
