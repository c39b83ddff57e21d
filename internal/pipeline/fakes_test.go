package pipeline_test

import (
	"fmt"

	"github.com/couchcryptid/h5geotiff/internal/domain"
)

// --- source fakes ---

// fakeSource is the content of one fake DSSF container. Attributes named in
// omit are reported missing.
type fakeSource struct {
	product  string
	rows     int
	cols     int
	firstLat int
	firstLon int
	missing  int
	scale    float64
	data     []int16
	omit     map[string]bool
}

func scenarioSource() *fakeSource {
	return &fakeSource{
		product:  "DSSF",
		rows:     2,
		cols:     2,
		firstLat: 10,
		firstLon: 20,
		missing:  -9999,
		scale:    100,
		data:     []int16{1000, -9999, 500, 2000},
		omit:     map[string]bool{},
	}
}

// events is a shared, ordered log of container and raster lifecycle calls.
type events []string

func (e *events) add(format string, args ...any) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

type fakeOpener struct {
	sources map[string]*fakeSource
	log     *events
}

func (o *fakeOpener) Open(path string) (domain.AttributeReader, error) {
	o.log.add("open %s", path)
	src, ok := o.sources[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, domain.ErrIO)
	}
	return &fakeReader{path: path, src: src, log: o.log}, nil
}

type fakeReader struct {
	path string
	src  *fakeSource
	log  *events
}

func (r *fakeReader) GlobalString(name string) (string, error) {
	if r.src.omit[name] || name != domain.AttrProduct {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
	}
	return r.src.product, nil
}

func (r *fakeReader) GlobalInt(name string) (int, error) {
	if r.src.omit[name] {
		return 0, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
	}
	switch name {
	case domain.AttrRows:
		return r.src.rows, nil
	case domain.AttrCols:
		return r.src.cols, nil
	case domain.AttrFirstLat:
		return r.src.firstLat, nil
	case domain.AttrFirstLon:
		return r.src.firstLon, nil
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, name)
}

func (r *fakeReader) checkNode(node string) error {
	if node != "/"+r.src.product || r.src.omit["node"] {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, node)
	}
	return nil
}

func (r *fakeReader) NodeInt(node, name string) (int, error) {
	if err := r.checkNode(node); err != nil {
		return 0, err
	}
	if r.src.omit[name] || name != domain.AttrMissingValue {
		return 0, fmt.Errorf("%w: %s@%s", domain.ErrMissingAttribute, node, name)
	}
	return r.src.missing, nil
}

func (r *fakeReader) NodeFloat(node, name string) (float64, error) {
	if err := r.checkNode(node); err != nil {
		return 0, err
	}
	if r.src.omit[name] || name != domain.AttrScalingFactor {
		return 0, fmt.Errorf("%w: %s@%s", domain.ErrMissingAttribute, node, name)
	}
	return r.src.scale, nil
}

func (r *fakeReader) ReadArray(node string) ([]int16, []int, error) {
	if err := r.checkNode(node); err != nil {
		return nil, nil, err
	}
	return r.src.data, []int{r.src.rows, r.src.cols}, nil
}

func (r *fakeReader) Close() error {
	r.log.add("close %s", r.path)
	return nil
}

// --- raster fakes ---

type fakeCreator struct {
	log       *events
	createErr error
	failOn    string // RasterWriter method that returns an error
	writers   []*fakeWriter
}

func (c *fakeCreator) Create(path string, width, height int, dtype domain.DataType) (domain.RasterWriter, error) {
	c.log.add("create %s", path)
	if c.createErr != nil {
		return nil, c.createErr
	}
	w := &fakeWriter{
		path:     path,
		width:    width,
		height:   height,
		dtype:    dtype,
		failOn:   c.failOn,
		log:      c.log,
		metadata: map[string]string{},
	}
	c.writers = append(c.writers, w)
	return w, nil
}

type fakeWriter struct {
	path          string
	width, height int
	dtype         domain.DataType
	failOn        string
	log           *events

	band      []int16
	gt        domain.GeoTransform
	wkt       string
	noData    float64
	metadata  map[string]string
	closed    bool
	discarded bool
}

func (w *fakeWriter) check(method string) error {
	if w.closed || w.discarded {
		return domain.ErrClosed
	}
	if w.failOn == method {
		return fmt.Errorf("%s: %w", method, domain.ErrIO)
	}
	return nil
}

func (w *fakeWriter) WriteBand(values []int16) error {
	if err := w.check("WriteBand"); err != nil {
		return err
	}
	w.band = append([]int16(nil), values...)
	return nil
}

func (w *fakeWriter) SetGeoTransform(gt domain.GeoTransform) error {
	if err := w.check("SetGeoTransform"); err != nil {
		return err
	}
	w.gt = gt
	return nil
}

func (w *fakeWriter) SetProjection(wkt string) error {
	if err := w.check("SetProjection"); err != nil {
		return err
	}
	w.wkt = wkt
	return nil
}

func (w *fakeWriter) SetNoDataValue(v float64) error {
	if err := w.check("SetNoDataValue"); err != nil {
		return err
	}
	w.noData = v
	return nil
}

func (w *fakeWriter) SetMetadata(key, value string) error {
	if err := w.check("SetMetadata"); err != nil {
		return err
	}
	w.metadata[key] = value
	return nil
}

func (w *fakeWriter) Close() error {
	if err := w.check("Close"); err != nil {
		return err
	}
	w.closed = true
	w.log.add("commit %s", w.path)
	return nil
}

func (w *fakeWriter) Discard() error {
	if w.closed || w.discarded {
		return domain.ErrClosed
	}
	w.discarded = true
	w.log.add("discard %s", w.path)
	return nil
}
