package domain

import "errors"

// Conversion errors. Adapters wrap these with the offending attribute, node or
// path so callers can match with errors.Is and still log a useful message.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrMissingAttribute = errors.New("missing attribute")
	ErrInvalidAttribute = errors.New("invalid attribute")
	ErrNodeNotFound     = errors.New("dataset node not found")
	ErrShapeMismatch    = errors.New("array shape does not match grid dimensions")
	ErrIO               = errors.New("i/o failure")
	ErrClosed           = errors.New("raster is closed")
	ErrUnsupported      = errors.New("unsupported")
)

// ErrorKind returns a short label for err suitable for metric labels and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMissingAttribute):
		return "missing_attribute"
	case errors.Is(err, ErrInvalidAttribute):
		return "invalid_attribute"
	case errors.Is(err, ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrIO), errors.Is(err, ErrClosed):
		return "io"
	default:
		return "other"
	}
}
