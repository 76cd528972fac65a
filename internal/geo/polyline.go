// Package geo provides the polyline codec and route geometry used by the
// tracking engine. The polyline format follows Google's Encoded Polyline
// Algorithm: coordinates scaled by 1e5, delta-encoded, zig-zag transformed
// and emitted in 5-bit groups offset by 63.
package geo

import (
	"errors"
	"math"
)

// ErrMalformedPolyline is returned when an encoded polyline ends in the
// middle of a continuation sequence.
var ErrMalformedPolyline = errors.New("malformed polyline")

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DecodePolyline decodes an encoded polyline into coordinates.
// An empty string decodes to an empty route.
func DecodePolyline(encoded string) ([]Point, error) {
	var points []Point
	index := 0
	lat, lng := 0, 0

	for index < len(encoded) {
		dlat, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lat += dlat

		dlng, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lng += dlng

		points = append(points, Point{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}

	return points, nil
}

// decodeValue decodes one zig-zag encoded delta starting at index.
// Returns the delta and the index of the next unread character.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0

	for {
		if index >= len(encoded) {
			// Continuation bit set on the last character, or a pair
			// cut short: the string was truncated.
			return 0, 0, ErrMalformedPolyline
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// EncodePolyline encodes coordinates into a polyline string. Round-trips
// with DecodePolyline up to 1e-5 degree rounding.
func EncodePolyline(points []Point) string {
	if len(points) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(points)*4)
	prevLat, prevLng := 0, 0

	for _, p := range points {
		lat := int(math.Round(p.Lat * 1e5))
		lng := int(math.Round(p.Lng * 1e5))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lng-prevLng)

		prevLat = lat
		prevLng = lng
	}

	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	// Zig-zag: negatives are bit-inverted so the sign lands in bit 0.
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}
