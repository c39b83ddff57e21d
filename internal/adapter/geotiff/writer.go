package geotiff

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/h5geotiff/internal/domain"
)

// DefaultSoftware is written to the TIFF Software tag.
const DefaultSoftware = "h5geotiff"

// outputMode is the permission of committed rasters; temp files start at 0600.
const outputMode = 0o644

// dateTimeLayout is the TIFF 6.0 DateTime format.
const dateTimeLayout = "2006:01:02 15:04:05"

// Creator creates GeoTIFF files. It implements domain.RasterCreator.
type Creator struct {
	software string
}

// NewCreator returns a Creator that stamps outputs with software.
// An empty string selects DefaultSoftware.
func NewCreator(software string) *Creator {
	if software == "" {
		software = DefaultSoftware
	}
	return &Creator{software: software}
}

// Create stages a width x height raster for path. The file at path is only
// replaced when the returned writer's Close succeeds.
func (c *Creator) Create(path string, width, height int, dtype domain.DataType) (domain.RasterWriter, error) {
	w, err := Create(path, width, height, dtype, c.software)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Writer buffers one single-band int16 raster and writes it on Close.
// It implements domain.RasterWriter. Writer is not safe for concurrent use.
type Writer struct {
	path     string
	tmp      *os.File
	software string
	closed   bool

	img image
}

// Create opens a temporary file next to path and returns a writer for it.
func Create(path string, width, height int, dtype domain.DataType, software string) (*Writer, error) {
	if dtype != domain.Int16 {
		return nil, fmt.Errorf("%w: data type %s", domain.ErrUnsupported, dtype)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: raster size %dx%d", domain.ErrUnsupported, width, height)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w: %w", path, domain.ErrIO, err)
	}
	return &Writer{
		path:     path,
		tmp:      tmp,
		software: software,
		img:      image{width: width, height: height},
	}, nil
}

// WriteBand stores the full band, row-major, starting at pixel (0,0).
func (w *Writer) WriteBand(values []int16) error {
	if w.closed {
		return domain.ErrClosed
	}
	if len(values) != w.img.width*w.img.height {
		return fmt.Errorf("%w: band has %d samples for %dx%d", domain.ErrShapeMismatch, len(values), w.img.width, w.img.height)
	}
	w.img.data = append(w.img.data[:0], values...)
	return nil
}

// SetGeoTransform records the affine pixel-to-CRS transform. A transform
// with a zero determinant is rejected.
func (w *Writer) SetGeoTransform(gt domain.GeoTransform) error {
	if w.closed {
		return domain.ErrClosed
	}
	if gt[1]*gt[5]-gt[2]*gt[4] == 0 {
		return fmt.Errorf("%w: degenerate geotransform %v", domain.ErrUnsupported, gt)
	}
	w.img.gt = gt
	w.img.hasGT = true
	return nil
}

// SetProjection records the coordinate system given as WKT. Only geographic
// systems are accepted; one without an EPSG authority is written as
// user-defined.
func (w *Writer) SetProjection(wkt string) error {
	if w.closed {
		return domain.ErrClosed
	}
	keys, err := keysFromWKT(wkt)
	if err != nil {
		return err
	}
	w.img.keys = keys
	return nil
}

// SetNoDataValue records the band no-data value in the GDAL_NODATA tag.
func (w *Writer) SetNoDataValue(v float64) error {
	if w.closed {
		return domain.ErrClosed
	}
	w.img.noData = strconv.FormatFloat(v, 'g', -1, 64)
	w.img.hasNoData = true
	return nil
}

// SetMetadata sets a GDAL metadata item. STATISTICS_* items are attached to
// the band, everything else to the dataset. Setting a key twice replaces it.
func (w *Writer) SetMetadata(key, value string) error {
	if w.closed {
		return domain.ErrClosed
	}
	if key == "" {
		return fmt.Errorf("%w: empty metadata key", domain.ErrConfiguration)
	}
	item := newMetadataItem(key, value)
	for i := range w.img.metadata {
		if w.img.metadata[i].Name == key {
			w.img.metadata[i] = item
			return nil
		}
	}
	w.img.metadata = append(w.img.metadata, item)
	return nil
}

// Close encodes the raster, syncs it and renames it into place. A band that
// was never written is stored as zeros. On failure nothing is left at path.
func (w *Writer) Close() error {
	if w.closed {
		return domain.ErrClosed
	}
	w.closed = true

	if w.img.data == nil {
		w.img.data = make([]int16, w.img.width*w.img.height)
	}
	w.img.software = w.software
	w.img.dateTime = domain.Now().UTC().Format(dateTimeLayout)

	if err := w.commit(); err != nil {
		_ = w.tmp.Close()
		_ = os.Remove(w.tmp.Name())
		return err
	}
	return nil
}

func (w *Writer) commit() error {
	bw := bufio.NewWriter(w.tmp)
	if err := encode(bw, &w.img, binary.LittleEndian); err != nil {
		return fmt.Errorf("encode %s: %w", w.path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w: %w", w.path, domain.ErrIO, err)
	}
	if err := w.tmp.Chmod(outputMode); err != nil {
		return fmt.Errorf("chmod %s: %w: %w", w.path, domain.ErrIO, err)
	}
	if err := w.tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w: %w", w.path, domain.ErrIO, err)
	}
	if err := w.tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %w", w.path, domain.ErrIO, err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename %s: %w: %w", w.path, domain.ErrIO, err)
	}
	return nil
}

// Discard removes the staged file. Discard after Close or Discard returns
// ErrClosed.
func (w *Writer) Discard() error {
	if w.closed {
		return domain.ErrClosed
	}
	w.closed = true
	_ = w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w: %w", w.path, domain.ErrIO, err)
	}
	return nil
}
