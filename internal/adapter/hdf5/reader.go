package hdf5

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/h5geotiff/internal/domain"
	gohdf5 "github.com/robert-malhotra/go-hdf5/hdf5"
)

// Opener opens HDF5 containers. It implements domain.ContainerOpener.
type Opener struct{}

// NewOpener returns an Opener backed by the pure-Go HDF5 reader.
func NewOpener() *Opener {
	return &Opener{}
}

// Open opens path read-only.
func (o *Opener) Open(path string) (domain.AttributeReader, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Reader reads root-group attributes, dataset attributes and dataset arrays
// from one HDF5 file. It implements domain.AttributeReader.
type Reader struct {
	path     string
	file     *gohdf5.File
	datasets map[string]*gohdf5.Dataset
}

// Open opens path read-only.
func Open(path string) (*Reader, error) {
	f, err := gohdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, domain.ErrIO, err)
	}
	return &Reader{
		path:     path,
		file:     f,
		datasets: make(map[string]*gohdf5.Dataset),
	}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.datasets = nil
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %w", r.path, domain.ErrIO, err)
	}
	return nil
}

// GlobalString returns the root-group attribute name as a string.
func (r *Reader) GlobalString(name string) (string, error) {
	v, err := r.globalValue(name)
	if err != nil {
		return "", err
	}
	s, ok := scalarString(v)
	if !ok {
		return "", fmt.Errorf("%w: /@%s is %T, want string", domain.ErrInvalidAttribute, name, v)
	}
	return s, nil
}

// GlobalInt returns the root-group attribute name as an int. Integer and
// whole float attributes of any width are accepted.
func (r *Reader) GlobalInt(name string) (int, error) {
	v, err := r.globalValue(name)
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: /@%s: %w", domain.ErrInvalidAttribute, name, err)
	}
	return n, nil
}

// NodeInt returns attribute name of the dataset at node as an int.
func (r *Reader) NodeInt(node, name string) (int, error) {
	v, err := r.nodeValue(node, name)
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s@%s: %w", domain.ErrInvalidAttribute, node, name, err)
	}
	return n, nil
}

// NodeFloat returns attribute name of the dataset at node as a float64.
func (r *Reader) NodeFloat(node, name string) (float64, error) {
	v, err := r.nodeValue(node, name)
	if err != nil {
		return 0, err
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s@%s: %w", domain.ErrInvalidAttribute, node, name, err)
	}
	return f, nil
}

// ReadArray reads every sample of the dataset at node, converted to int16
// with the truncating semantics of a numeric cast.
func (r *Reader) ReadArray(node string) ([]int16, []int, error) {
	ds, err := r.dataset(node)
	if err != nil {
		return nil, nil, err
	}
	values, err := ds.ReadInt16()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s%s: %w: %w", r.path, node, domain.ErrIO, err)
	}
	shape := ds.Shape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	return values, dims, nil
}

func (r *Reader) globalValue(name string) (any, error) {
	attr := r.file.Root().Attr(name)
	if attr == nil {
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrMissingAttribute, name, r.path)
	}
	v, err := attr.Value()
	if err != nil {
		return nil, fmt.Errorf("%w: /@%s: %w", domain.ErrInvalidAttribute, name, err)
	}
	return v, nil
}

func (r *Reader) nodeValue(node, name string) (any, error) {
	ds, err := r.dataset(node)
	if err != nil {
		return nil, err
	}
	attr := ds.Attr(name)
	if attr == nil {
		return nil, fmt.Errorf("%w: %s on %s in %s", domain.ErrMissingAttribute, name, node, r.path)
	}
	v, err := attr.Value()
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %w", domain.ErrInvalidAttribute, node, name, err)
	}
	return v, nil
}

func (r *Reader) dataset(node string) (*gohdf5.Dataset, error) {
	if ds, ok := r.datasets[node]; ok {
		return ds, nil
	}
	ds, err := r.file.OpenDataset(node)
	switch {
	case err == nil:
	case errors.Is(err, gohdf5.ErrNotFound), errors.Is(err, gohdf5.ErrNotDataset):
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrNodeNotFound, node, r.path)
	default:
		return nil, fmt.Errorf("open %s%s: %w: %w", r.path, node, domain.ErrIO, err)
	}
	r.datasets[node] = ds
	return ds, nil
}

// scalarString unwraps a string attribute, accepting one-element arrays.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimRight(s, "\x00 "), true
	case []string:
		if len(s) == 1 {
			return strings.TrimRight(s[0], "\x00 "), true
		}
	}
	return "", false
}

// toInt converts an attribute value to int, truncating floats and parsing
// numeric strings.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, fmt.Errorf("value %d overflows int", n)
		}
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("value %v is not finite", n)
		}
		return int(n), nil
	case []int64:
		if len(n) == 1 {
			return int(n[0]), nil
		}
	case []uint64:
		if len(n) == 1 {
			return toInt(n[0])
		}
	case []float64:
		if len(n) == 1 {
			return toInt(n[0])
		}
	}
	if s, ok := scalarString(v); ok {
		s = strings.TrimSpace(s)
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", s, err)
		}
		return toInt(f)
	}
	return 0, fmt.Errorf("unsupported attribute type %T", v)
}

// toFloat converts an attribute value to float64, parsing numeric strings.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case []float64:
		if len(n) == 1 {
			return n[0], nil
		}
	case []int64:
		if len(n) == 1 {
			return float64(n[0]), nil
		}
	case []uint64:
		if len(n) == 1 {
			return float64(n[0]), nil
		}
	}
	if s, ok := scalarString(v); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", s, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported attribute type %T", v)
}
