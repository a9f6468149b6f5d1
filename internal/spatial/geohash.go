package spatial

import "strings"

// Base32 alphabet for geohash
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes latitude and longitude into a geohash string.
// precision is clamped to 1-12 characters.
func EncodeGeohash(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}

	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)
	even := true
	ch, bits := 0, 0
	for sb.Len() < precision {
		ch <<= 1
		if even {
			mid := (lonLo + lonHi) / 2
			if lon > mid {
				ch |= 1
				lonLo = mid
			} else {
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat > mid {
				ch |= 1
				latLo = mid
			} else {
				latHi = mid
			}
		}
		even = !even
		if bits++; bits == 5 {
			sb.WriteByte(base32[ch])
			ch, bits = 0, 0
		}
	}
	return sb.String()
}

// DecodeGeohash returns the center point of the geohash cell.
func DecodeGeohash(hash string) (lat, lon float64) {
	b := GeohashBounds(hash)
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// GeohashBounds returns the cell rectangle. Characters outside the alphabet are skipped.
func GeohashBounds(hash string) Box {
	b := Box{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	even := true
	for i := 0; i < len(hash); i++ {
		idx := strings.IndexByte(base32, hash[i])
		if idx < 0 {
			continue
		}
		for mask := 16; mask > 0; mask >>= 1 {
			if even {
				mid := (b.MinLon + b.MaxLon) / 2
				if idx&mask != 0 {
					b.MinLon = mid
				} else {
					b.MaxLon = mid
				}
			} else {
				mid := (b.MinLat + b.MaxLat) / 2
				if idx&mask != 0 {
					b.MinLat = mid
				} else {
					b.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return b
}
