package geotiff

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/h5geotiff/internal/domain"
	"github.com/ctessum/geom/proj"
)

// GeoKey IDs and values from the GeoTIFF 1.0 key registry.
const (
	keyGTModelType      uint16 = 1024
	keyGTRasterType     uint16 = 1025
	keyGTCitation       uint16 = 1026
	keyGeographicType   uint16 = 2048
	keyGeogCitation     uint16 = 2049
	keyGeogAngularUnits uint16 = 2054
	keyProjectedCSType  uint16 = 3072

	modelTypeGeographic uint16 = 2
	rasterPixelIsArea   uint16 = 1
	angularUnitDegree   uint16 = 9102
	userDefined         uint16 = 32767
)

var (
	authorityCodeRE = regexp.MustCompile(`^AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	geogcsNameRE    = regexp.MustCompile(`^\s*GEOGCS\[\s*"([^"]*)"`)
)

// geoKeys is the GeoKey directory content for a geographic CRS.
type geoKeys struct {
	epsg     uint16
	citation string
}

// keysFromWKT derives GeoKeys from an OGC WKT1 coordinate system. Only
// geographic systems are supported.
func keysFromWKT(wkt string) (*geoKeys, error) {
	sr, err := proj.Parse(wkt)
	if err != nil {
		return nil, fmt.Errorf("%w: parse CRS: %w", domain.ErrConfiguration, err)
	}
	if sr.Name != "longlat" {
		return nil, fmt.Errorf("%w: CRS %q is not geographic", domain.ErrUnsupported, sr.SRSCode)
	}

	k := &geoKeys{epsg: userDefined}
	if code, ok := topLevelAuthority(wkt); ok && code > 0 && code < math.MaxUint16 {
		k.epsg = uint16(code)
	}
	if m := geogcsNameRE.FindStringSubmatch(wkt); m != nil {
		k.citation = m[1]
	}
	return k, nil
}

// EPSGCode returns the GeographicTypeGeoKey value written for wkt: its EPSG
// code, or 32767 (user-defined) when the WKT carries no top-level authority.
func EPSGCode(wkt string) (int, error) {
	k, err := keysFromWKT(wkt)
	if err != nil {
		return 0, err
	}
	return int(k.epsg), nil
}

// topLevelAuthority returns the EPSG code attached directly to the outermost
// WKT node, ignoring authorities of nested datum, spheroid and unit nodes.
func topLevelAuthority(wkt string) (int, bool) {
	depth := 0
	quoted := false
	for i := 0; i < len(wkt); i++ {
		switch c := wkt[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[':
			depth++
		case c == ']':
			depth--
		case depth == 1 && strings.HasPrefix(wkt[i:], "AUTHORITY["):
			m := authorityCodeRE.FindStringSubmatch(wkt[i:])
			if m == nil {
				return 0, false
			}
			code, err := strconv.Atoi(m[1])
			return code, err == nil
		}
	}
	return 0, false
}

// encode renders the GeoKeyDirectoryTag shorts and the GeoAsciiParamsTag text.
func (k *geoKeys) encode() ([]uint16, string) {
	type entry struct{ id, location, count, value uint16 }
	entries := []entry{
		{keyGTModelType, 0, 1, modelTypeGeographic},
		{keyGTRasterType, 0, 1, rasterPixelIsArea},
		{keyGeographicType, 0, 1, k.epsg},
		{keyGeogAngularUnits, 0, 1, angularUnitDegree},
	}
	var params string
	if k.citation != "" {
		params = k.citation + "|"
		entries = append(entries, entry{keyGeogCitation, tagGeoASCIIParams, uint16(len(params)), 0})
	}
	slices.SortFunc(entries, func(a, b entry) int { return int(a.id) - int(b.id) })

	dir := []uint16{1, 1, 0, uint16(len(entries))}
	for _, e := range entries {
		dir = append(dir, e.id, e.location, e.count, e.value)
	}
	return dir, params
}

// decodeGeoKeys reads a GeoKey directory. Short-valued keys land in shorts;
// keys stored in GeoAsciiParamsTag land in text with the trailing '|' removed.
func decodeGeoKeys(dir []uint16, ascii string) (shorts map[uint16]uint16, text map[uint16]string, err error) {
	if len(dir) < 4 {
		return nil, nil, fmt.Errorf("%w: GeoKey directory has %d values", domain.ErrUnsupported, len(dir))
	}
	n := int(dir[3])
	if len(dir) < 4+4*n {
		return nil, nil, fmt.Errorf("%w: GeoKey directory declares %d keys in %d values", domain.ErrUnsupported, n, len(dir))
	}
	shorts = make(map[uint16]uint16, n)
	text = make(map[uint16]string)
	for i := 0; i < n; i++ {
		e := dir[4+4*i : 8+4*i]
		id, location, count, value := e[0], e[1], e[2], e[3]
		switch location {
		case 0:
			shorts[id] = value
		case tagGeoASCIIParams:
			end := int(value) + int(count)
			if end > len(ascii) {
				return nil, nil, fmt.Errorf("%w: GeoKey %d overruns ASCII params", domain.ErrUnsupported, id)
			}
			text[id] = strings.TrimSuffix(ascii[value:end], "|")
		}
	}
	return shorts, text, nil
}
