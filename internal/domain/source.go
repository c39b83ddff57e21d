package domain

import (
	"fmt"
	"strings"
)

// AttributeReader exposes the attributes and arrays of an open container.
// Absent attributes yield ErrMissingAttribute; absent nodes yield ErrNodeNotFound.
type AttributeReader interface {
	GlobalString(name string) (string, error)
	GlobalInt(name string) (int, error)
	NodeInt(node, name string) (int, error)
	NodeFloat(node, name string) (float64, error)

	// ReadArray returns every sample of node cast to int16, row-major, and
	// the node's dimensions.
	ReadArray(node string) ([]int16, []int, error)

	Close() error
}

// ContainerOpener opens input containers read-only.
type ContainerOpener interface {
	Open(path string) (AttributeReader, error)
}

// ReadSourceGrid extracts the grid description and raw samples from r.
//
//	Attribute       Scope    Type    Meaning
//	PRODUCT         global   string  name of the dataset node
//	NL              global   int     number of rows
//	NC              global   int     number of columns
//	FIRST_LAT       global   int     latitude of the center of pixel (0,0)
//	FIRST_LON       global   int     longitude of the center of pixel (0,0)
//	MISSING_VALUE   node     int     missing-sample sentinel
//	SCALING_FACTOR  node     float   divisor for valid samples
//
// Every attribute is read before the array so a malformed file fails fast.
func ReadSourceGrid(r AttributeReader) (SourceGrid, error) {
	product, err := r.GlobalString(AttrProduct)
	if err != nil {
		return SourceGrid{}, err
	}
	product = strings.TrimSpace(product)
	if product == "" {
		return SourceGrid{}, fmt.Errorf("%w: %s is empty", ErrInvalidAttribute, AttrProduct)
	}
	node := "/" + strings.TrimPrefix(product, "/")

	var g SourceGrid
	g.Product = product
	ints := []struct {
		name string
		dst  *int
	}{
		{AttrRows, &g.Rows},
		{AttrCols, &g.Cols},
		{AttrFirstLat, &g.FirstLat},
		{AttrFirstLon, &g.FirstLon},
	}
	for _, a := range ints {
		if *a.dst, err = r.GlobalInt(a.name); err != nil {
			return SourceGrid{}, err
		}
	}

	if g.MissingValue, err = r.NodeInt(node, AttrMissingValue); err != nil {
		return SourceGrid{}, err
	}
	if g.ScalingFactor, err = r.NodeFloat(node, AttrScalingFactor); err != nil {
		return SourceGrid{}, err
	}

	raw, dims, err := r.ReadArray(node)
	if err != nil {
		return SourceGrid{}, err
	}
	if len(raw) != g.Rows*g.Cols {
		return SourceGrid{}, fmt.Errorf("%w: %s has shape %v, expected %dx%d",
			ErrShapeMismatch, node, dims, g.Rows, g.Cols)
	}
	g.Raw = raw
	return g, nil
}
