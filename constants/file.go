package constants

import "strings"

// HEICBrands holds ISO-BMFF major brands that identify HEIC/HEIF payloads.
var HEICBrands = map[string]struct{}{
	"heic": {},
	"heix": {},
	"hevc": {},
	"hevx": {},
	"heim": {},
	"heis": {},
	"mif1": {},
	"msf1": {},
}

// IsHEICBrand reports whether brand (the 4 bytes after "ftyp") is a HEIC/HEIF brand.
func IsHEICBrand(brand string) bool {
	_, ok := HEICBrands[strings.ToLower(brand)]
	return ok
}

// MaxImageMBDefault caps decoded request payloads.
const MaxImageMBDefault = 32
