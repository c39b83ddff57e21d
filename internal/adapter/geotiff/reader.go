package geotiff

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/h5geotiff/internal/domain"
)

// Raster is a decoded single-band int16 GeoTIFF.
type Raster struct {
	Width, Height int
	Data          []int16 // row-major

	GeoTransform    domain.GeoTransform
	HasGeoTransform bool

	ModelType  int
	RasterType int
	EPSG       int
	Citation   string

	NoData    float64
	HasNoData bool

	Metadata map[string]string
	Software string
	DateTime string
}

// Read decodes the GeoTIFF subset written by Writer: classic TIFF in either
// byte order, one uncompressed strip-organised int16 band.
func Read(path string) (*Raster, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, domain.ErrIO, err)
	}
	r, err := decode(buf)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return r, nil
}

type entry struct {
	typ   uint16
	count uint32
	value []byte
}

type ifd struct {
	bo      binary.ByteOrder
	entries map[uint16]entry
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7:
		return 1
	case typeShort, 8:
		return 2
	case typeLong, 9, 11:
		return 4
	case 5, 10, typeDouble:
		return 8
	default:
		return 0
	}
}

func decode(buf []byte) (*Raster, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: file too short for a TIFF header", domain.ErrUnsupported)
	}
	var bo binary.ByteOrder
	switch string(buf[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: not a TIFF file", domain.ErrUnsupported)
	}
	if magic := bo.Uint16(buf[2:]); magic != 42 {
		return nil, fmt.Errorf("%w: TIFF version %d", domain.ErrUnsupported, magic)
	}

	d, err := readIFD(buf, bo, bo.Uint32(buf[4:]))
	if err != nil {
		return nil, err
	}
	r := &Raster{}
	if err := d.readImage(buf, r); err != nil {
		return nil, err
	}
	if err := d.readGeoreference(r); err != nil {
		return nil, err
	}
	if err := d.readGDALTags(r); err != nil {
		return nil, err
	}
	r.Software = d.ascii(tagSoftware)
	r.DateTime = d.ascii(tagDateTime)
	return r, nil
}

func readIFD(buf []byte, bo binary.ByteOrder, off uint32) (*ifd, error) {
	if int64(off)+2 > int64(len(buf)) {
		return nil, fmt.Errorf("%w: IFD offset %d out of range", domain.ErrUnsupported, off)
	}
	n := int(bo.Uint16(buf[off:]))
	start := int(off) + 2
	if start+n*entrySize > len(buf) {
		return nil, fmt.Errorf("%w: IFD with %d entries overruns file", domain.ErrUnsupported, n)
	}
	d := &ifd{bo: bo, entries: make(map[uint16]entry, n)}
	for i := 0; i < n; i++ {
		e := buf[start+i*entrySize : start+(i+1)*entrySize]
		tag, typ, count := bo.Uint16(e), bo.Uint16(e[2:]), bo.Uint32(e[4:])
		size := int64(typeSize(typ)) * int64(count)
		if size == 0 {
			continue
		}
		var value []byte
		if size <= 4 {
			value = e[8 : 8+size]
		} else {
			at := int64(bo.Uint32(e[8:]))
			if at+size > int64(len(buf)) {
				return nil, fmt.Errorf("%w: tag %d value overruns file", domain.ErrUnsupported, tag)
			}
			value = buf[at : at+size]
		}
		d.entries[tag] = entry{typ: typ, count: count, value: value}
	}
	return d, nil
}

// uints returns SHORT or LONG values of tag.
func (d *ifd) uints(tag uint16) []uint32 {
	e, ok := d.entries[tag]
	if !ok {
		return nil
	}
	out := make([]uint32, e.count)
	for i := range out {
		switch e.typ {
		case typeShort:
			out[i] = uint32(d.bo.Uint16(e.value[2*i:]))
		case typeLong:
			out[i] = d.bo.Uint32(e.value[4*i:])
		default:
			return nil
		}
	}
	return out
}

// uintOr returns the first value of tag, or def when absent.
func (d *ifd) uintOr(tag uint16, def uint32) uint32 {
	if v := d.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *ifd) doubles(tag uint16) []float64 {
	e, ok := d.entries[tag]
	if !ok || e.typ != typeDouble {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.bo.Uint64(e.value[8*i:]))
	}
	return out
}

func (d *ifd) ascii(tag uint16) string {
	e, ok := d.entries[tag]
	if !ok || e.typ != typeASCII {
		return ""
	}
	return strings.TrimRight(string(e.value), "\x00")
}

func (d *ifd) readImage(buf []byte, r *Raster) error {
	r.Width = int(d.uintOr(tagImageWidth, 0))
	r.Height = int(d.uintOr(tagImageLength, 0))
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("%w: missing image dimensions", domain.ErrUnsupported)
	}
	checks := []struct {
		name      string
		tag       uint16
		def, want uint32
	}{
		{"compression", tagCompression, compressionNone, compressionNone},
		{"bits per sample", tagBitsPerSample, 1, bitsPerInt16},
		{"samples per pixel", tagSamplesPerPixel, 1, 1},
		{"sample format", tagSampleFormat, 1, sampleFormatInt},
		{"planar configuration", tagPlanarConfiguration, planarContig, planarContig},
	}
	for _, c := range checks {
		if got := d.uintOr(c.tag, c.def); got != c.want {
			return fmt.Errorf("%w: %s %d", domain.ErrUnsupported, c.name, got)
		}
	}

	offsets, counts := d.uints(tagStripOffsets), d.uints(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return fmt.Errorf("%w: strip offsets and byte counts disagree", domain.ErrUnsupported)
	}
	want := int64(r.Width) * int64(r.Height) * 2
	raw := make([]byte, 0, want)
	for i, off := range offsets {
		end := int64(off) + int64(counts[i])
		if end > int64(len(buf)) {
			return fmt.Errorf("%w: strip %d overruns file", domain.ErrUnsupported, i)
		}
		raw = append(raw, buf[off:end]...)
	}
	if int64(len(raw)) != want {
		return fmt.Errorf("%w: %d strip bytes for %dx%d int16", domain.ErrShapeMismatch, len(raw), r.Width, r.Height)
	}
	r.Data = make([]int16, r.Width*r.Height)
	for i := range r.Data {
		r.Data[i] = int16(d.bo.Uint16(raw[2*i:]))
	}
	return nil
}

func (d *ifd) readGeoreference(r *Raster) error {
	if m := d.doubles(tagModelTransformation); len(m) == 16 {
		r.GeoTransform = domain.GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}
		r.HasGeoTransform = true
	} else if scale, tie := d.doubles(tagModelPixelScale), d.doubles(tagModelTiepoint); len(scale) >= 2 && len(tie) >= 6 {
		sx, sy := scale[0], scale[1]
		r.GeoTransform = domain.GeoTransform{tie[3] - tie[0]*sx, sx, 0, tie[4] + tie[1]*sy, 0, -sy}
		r.HasGeoTransform = true
	}

	dir := d.uints(tagGeoKeyDirectory)
	if dir == nil {
		return nil
	}
	dir16 := make([]uint16, len(dir))
	for i, v := range dir {
		dir16[i] = uint16(v)
	}
	shorts, text, err := decodeGeoKeys(dir16, d.ascii(tagGeoASCIIParams))
	if err != nil {
		return err
	}
	r.ModelType = int(shorts[keyGTModelType])
	r.RasterType = int(shorts[keyGTRasterType])
	if code, ok := shorts[keyGeographicType]; ok {
		r.EPSG = int(code)
	} else if code, ok := shorts[keyProjectedCSType]; ok {
		r.EPSG = int(code)
	}
	r.Citation = text[keyGeogCitation]
	if r.Citation == "" {
		r.Citation = text[keyGTCitation]
	}
	return nil
}

func (d *ifd) readGDALTags(r *Raster) error {
	if s := d.ascii(tagGDALNoData); s != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%w: GDAL_NODATA %q", domain.ErrUnsupported, s)
		}
		r.NoData = v
		r.HasNoData = true
	}
	if s := d.ascii(tagGDALMetadata); s != "" {
		md, err := decodeMetadata(s)
		if err != nil {
			return err
		}
		r.Metadata = md
	}
	return nil
}
