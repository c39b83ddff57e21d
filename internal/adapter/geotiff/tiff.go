package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/couchcryptid/h5geotiff/internal/domain"
)

// TIFF field types.
const (
	typeASCII  uint16 = 2
	typeShort  uint16 = 3
	typeLong   uint16 = 4
	typeDouble uint16 = 12
)

// Baseline and GeoTIFF tags emitted by the encoder.
const (
	tagImageWidth          uint16 = 256
	tagImageLength         uint16 = 257
	tagBitsPerSample       uint16 = 258
	tagCompression         uint16 = 259
	tagPhotometric         uint16 = 262
	tagStripOffsets        uint16 = 273
	tagSamplesPerPixel     uint16 = 277
	tagRowsPerStrip        uint16 = 278
	tagStripByteCounts     uint16 = 279
	tagPlanarConfiguration uint16 = 284
	tagSoftware            uint16 = 305
	tagDateTime            uint16 = 306
	tagSampleFormat        uint16 = 339
	tagModelPixelScale     uint16 = 33550
	tagModelTiepoint       uint16 = 33922
	tagModelTransformation uint16 = 34264
	tagGeoKeyDirectory     uint16 = 34735
	tagGeoDoubleParams     uint16 = 34736
	tagGeoASCIIParams      uint16 = 34737
	tagGDALMetadata        uint16 = 42112
	tagGDALNoData          uint16 = 42113
)

const (
	headerSize       = 8
	entrySize        = 12
	targetStripBytes = 8 << 10

	compressionNone    = 1
	photometricMinZero = 1
	planarContig       = 1
	sampleFormatInt    = 2
	bitsPerInt16       = 16
)

// byteOrder is satisfied by binary.LittleEndian and binary.BigEndian.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// field is one IFD entry with its value already encoded in the file's byte order.
type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// image is everything the encoder needs for one single-band int16 raster.
type image struct {
	width, height int
	data          []int16

	gt    domain.GeoTransform
	hasGT bool
	keys  *geoKeys

	noData    string
	hasNoData bool
	metadata  []metadataItem

	software string
	dateTime string
}

// stripRows returns the rows per strip that keep strips near targetStripBytes.
func stripRows(width, height int) int {
	rows := targetStripBytes / (width * 2)
	if rows < 1 {
		rows = 1
	}
	if rows > height {
		rows = height
	}
	return rows
}

func (img *image) fields(bo byteOrder, rowsPerStrip int, counts []uint32) ([]field, error) {
	fs := []field{
		longField(bo, tagImageWidth, uint32(img.width)),
		longField(bo, tagImageLength, uint32(img.height)),
		shortField(bo, tagBitsPerSample, bitsPerInt16),
		shortField(bo, tagCompression, compressionNone),
		shortField(bo, tagPhotometric, photometricMinZero),
		longField(bo, tagStripOffsets, make([]uint32, len(counts))...),
		shortField(bo, tagSamplesPerPixel, 1),
		longField(bo, tagRowsPerStrip, uint32(rowsPerStrip)),
		longField(bo, tagStripByteCounts, counts...),
		shortField(bo, tagPlanarConfiguration, planarContig),
		shortField(bo, tagSampleFormat, sampleFormatInt),
	}
	if img.software != "" {
		fs = append(fs, asciiField(tagSoftware, img.software))
	}
	if img.dateTime != "" {
		fs = append(fs, asciiField(tagDateTime, img.dateTime))
	}
	if img.hasGT {
		gt := img.gt
		if gt.NorthUp() && gt[1] > 0 && gt[5] < 0 {
			fs = append(fs,
				doubleField(bo, tagModelPixelScale, gt[1], -gt[5], 0),
				doubleField(bo, tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
			)
		} else {
			fs = append(fs, doubleField(bo, tagModelTransformation,
				gt[1], gt[2], 0, gt[0],
				gt[4], gt[5], 0, gt[3],
				0, 0, 0, 0,
				0, 0, 0, 1,
			))
		}
	}
	if img.keys != nil {
		dir, params := img.keys.encode()
		fs = append(fs, shortField(bo, tagGeoKeyDirectory, dir...))
		if params != "" {
			fs = append(fs, asciiField(tagGeoASCIIParams, params))
		}
	}
	if len(img.metadata) > 0 {
		doc, err := encodeMetadata(img.metadata)
		if err != nil {
			return nil, err
		}
		fs = append(fs, asciiField(tagGDALMetadata, doc))
	}
	if img.hasNoData {
		fs = append(fs, asciiField(tagGDALNoData, img.noData))
	}
	slices.SortFunc(fs, func(a, b field) int { return int(a.tag) - int(b.tag) })
	return fs, nil
}

// encode writes img as a classic single-IFD TIFF. Layout: header, IFD,
// out-of-line tag values, then the strips.
func encode(w io.Writer, img *image, bo byteOrder) error {
	if img.width <= 0 || img.height <= 0 {
		return fmt.Errorf("%w: raster size %dx%d", domain.ErrUnsupported, img.width, img.height)
	}
	if len(img.data) != img.width*img.height {
		return fmt.Errorf("%w: band has %d samples for %dx%d", domain.ErrShapeMismatch, len(img.data), img.width, img.height)
	}

	rowsPerStrip := stripRows(img.width, img.height)
	nStrips := (img.height + rowsPerStrip - 1) / rowsPerStrip
	rowBytes := img.width * 2
	counts := make([]uint32, nStrips)
	for i := range counts {
		rows := min(rowsPerStrip, img.height-i*rowsPerStrip)
		counts[i] = uint32(rows * rowBytes)
	}

	fs, err := img.fields(bo, rowsPerStrip, counts)
	if err != nil {
		return err
	}

	offset := int64(headerSize + 2 + entrySize*len(fs) + 4)
	valueOffsets := make([]int64, len(fs))
	for i, f := range fs {
		if len(f.data) > 4 {
			valueOffsets[i] = offset
			offset += int64(len(f.data))
			offset += offset & 1
		}
	}
	total := offset + int64(len(img.data))*2
	if total > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes exceeds classic TIFF limit", domain.ErrUnsupported, total)
	}

	stripOffsets := make([]uint32, nStrips)
	next := uint32(offset)
	for i, c := range counts {
		stripOffsets[i] = next
		next += c
	}
	// Same length as the placeholder, so the layout above still holds.
	for i := range fs {
		if fs[i].tag == tagStripOffsets {
			fs[i] = longField(bo, tagStripOffsets, stripOffsets...)
			break
		}
	}

	buf := make([]byte, 0, offset)
	if bo == byteOrder(binary.BigEndian) {
		buf = append(buf, 'M', 'M')
	} else {
		buf = append(buf, 'I', 'I')
	}
	buf = bo.AppendUint16(buf, 42)
	buf = bo.AppendUint32(buf, headerSize)

	buf = bo.AppendUint16(buf, uint16(len(fs)))
	for i, f := range fs {
		buf = bo.AppendUint16(buf, f.tag)
		buf = bo.AppendUint16(buf, f.typ)
		buf = bo.AppendUint32(buf, f.count)
		if len(f.data) > 4 {
			buf = bo.AppendUint32(buf, uint32(valueOffsets[i]))
			continue
		}
		var inline [4]byte
		copy(inline[:], f.data)
		buf = append(buf, inline[:]...)
	}
	buf = bo.AppendUint32(buf, 0)

	for _, f := range fs {
		if len(f.data) > 4 {
			buf = append(buf, f.data...)
			if len(buf)&1 == 1 {
				buf = append(buf, 0)
			}
		}
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}

	row := make([]byte, rowBytes)
	for r := 0; r < img.height; r++ {
		for c, v := range img.data[r*img.width : (r+1)*img.width] {
			bo.PutUint16(row[c*2:], uint16(v))
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func shortField(bo byteOrder, tag uint16, vs ...uint16) field {
	data := make([]byte, 0, 2*len(vs))
	for _, v := range vs {
		data = bo.AppendUint16(data, v)
	}
	return field{tag: tag, typ: typeShort, count: uint32(len(vs)), data: data}
}

func longField(bo byteOrder, tag uint16, vs ...uint32) field {
	data := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		data = bo.AppendUint32(data, v)
	}
	return field{tag: tag, typ: typeLong, count: uint32(len(vs)), data: data}
}

func doubleField(bo byteOrder, tag uint16, vs ...float64) field {
	data := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		data = bo.AppendUint64(data, math.Float64bits(v))
	}
	return field{tag: tag, typ: typeDouble, count: uint32(len(vs)), data: data}
}

func asciiField(tag uint16, s string) field {
	data := append([]byte(s), 0)
	return field{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data}
}
