package geotiff

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/couchcryptid/h5geotiff/internal/domain"
)

// bandMetadataPrefix marks items that GDAL expects on the band rather than
// the dataset.
const bandMetadataPrefix = "STATISTICS_"

type metadataItem struct {
	Name   string `xml:"name,attr"`
	Sample *int   `xml:"sample,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type gdalMetadata struct {
	XMLName xml.Name       `xml:"GDALMetadata"`
	Items   []metadataItem `xml:"Item"`
}

func newMetadataItem(key, value string) metadataItem {
	item := metadataItem{Name: key, Value: value}
	if strings.HasPrefix(key, bandMetadataPrefix) {
		band := 0
		item.Sample = &band
	}
	return item
}

// encodeMetadata renders items in the GDAL_METADATA XML form.
func encodeMetadata(items []metadataItem) (string, error) {
	out, err := xml.Marshal(gdalMetadata{Items: items})
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(out), nil
}

// decodeMetadata flattens GDAL_METADATA into a name/value map. Band and
// dataset items share one namespace since the raster has a single band.
func decodeMetadata(doc string) (map[string]string, error) {
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(doc), &md); err != nil {
		return nil, fmt.Errorf("%w: GDAL_METADATA: %w", domain.ErrUnsupported, err)
	}
	out := make(map[string]string, len(md.Items))
	for _, item := range md.Items {
		out[item.Name] = item.Value
	}
	return out, nil
}
