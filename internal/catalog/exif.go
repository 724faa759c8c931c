package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/fedragon/go-neardup/internal/models"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// exifMetadata carries the subset of EXIF fields the scanner cares about.
// Zero fields mean the tag was absent or unreadable.
type exifMetadata struct {
	CreatedAt time.Time
	Location  *models.LatLng
	Make      string
	Model     string
}

// readExif extracts capture metadata from an image file. Files without EXIF
// data are common, so callers treat any error as "no metadata" and fall back
// to filesystem timestamps.
func readExif(path string) (exifMetadata, error) {
	var meta exifMetadata

	rawExif, err := exif.SearchFileAndExtractExif(path)
	if err != nil {
		return meta, err
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return meta, err
	}

	for _, tag := range tags {
		switch tag.TagName {
		case "DateTimeOriginal":
			if parsed, err := time.Parse(exifTimeLayout, fmt.Sprintf("%v", tag.Value)); err == nil {
				meta.CreatedAt = parsed
			}
		case "Make":
			meta.Make = strings.TrimSpace(fmt.Sprintf("%v", tag.Value))
		case "Model":
			meta.Model = strings.TrimSpace(fmt.Sprintf("%v", tag.Value))
		}
	}

	meta.Location = readGPS(rawExif)
	return meta, nil
}

// readGPS decodes the GPS IFD into a coordinate pair. Most assets carry no
// GPS tags at all, so every failure collapses to "no location".
func readGPS(rawExif []byte) *models.LatLng {
	mapping, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil
	}

	_, index, err := exif.Collect(mapping, exif.NewTagIndex(), rawExif)
	if err != nil {
		return nil
	}

	gpsIfd, err := index.RootIfd.ChildWithIfdPath(exifcommon.IfdGpsInfoStandardIfdIdentity)
	if err != nil {
		return nil
	}

	info, err := gpsIfd.GpsInfo()
	if err != nil {
		return nil
	}

	return &models.LatLng{Lat: info.Latitude.Decimal(), Lng: info.Longitude.Decimal()}
}
