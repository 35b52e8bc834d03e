package mosaic

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

// ReadWorldFile reads an ESRI world file. World files locate the center of
// the top-left pixel; the returned GeoTransform locates its corner.
func ReadWorldFile(r io.Reader) (GeoTransform, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return GeoTransform{}, fmt.Errorf("%w: world file: %w", ErrSourceUnreadable, err)
		}
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return GeoTransform{}, err
	}
	if len(values) != 6 {
		return GeoTransform{}, fmt.Errorf("%w: world file: found %d values, expected 6", ErrSourceUnreadable, len(values))
	}
	a, d, b, e, c, f := values[0], values[1], values[2], values[3], values[4], values[5]
	return GeoTransform{
		c - a/2 - b/2, a, b,
		f - d/2 - e/2, d, e,
	}, nil
}

// worldFileNames returns the candidate world file names for name, e.g.
// image.pgw, image.pngw, and image.wld for image.png.
func worldFileNames(name string) []string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	var names []string
	if len(ext) >= 3 {
		names = append(names, base+ext[:2]+ext[len(ext)-1:]+"w")
	}
	if ext != "" {
		names = append(names, name+"w")
	}
	names = append(names, base+".wld")
	return names
}

// readWorldFileFor reads the world file next to name in fsys. The second
// return value is false if there is none.
func readWorldFileFor(fsys fs.FS, name string) (GeoTransform, bool, error) {
	for _, worldFileName := range worldFileNames(name) {
		for _, candidate := range []string{worldFileName, strings.ToLower(worldFileName)} {
			file, err := fsys.Open(candidate)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				continue
			case err != nil:
				return GeoTransform{}, false, err
			}
			gt, err := ReadWorldFile(file)
			_ = file.Close()
			if err != nil {
				return GeoTransform{}, false, err
			}
			return gt, true, nil
		}
	}
	return GeoTransform{}, false, nil
}

// georeference sets info's coordinate system, geo-transform, and sector. The
// source's sector override wins. Otherwise the reader's georeferencing is
// used, falling back to a world file next to the source.
func georeference(info *HandleInfo, source Source, gt GeoTransform, hasGeoTransform bool, kind CoordinateSystemKind, srid int) error {
	if source.Sector != nil {
		info.CoordinateSystem = CoordinateSystemScreen
		info.SRID = 0
		info.GeoTransform = GeoTransformFromSector(*source.Sector, info.Width, info.Height)
		info.Sector = *source.Sector
		return nil
	}
	if !hasGeoTransform {
		worldFileGT, ok, err := readWorldFileFor(source.FS, source.Path)
		if err != nil {
			return err
		}
		if ok {
			gt, hasGeoTransform = worldFileGT, true
		}
	}
	if hasGeoTransform && kind == CoordinateSystemUnknown && looksGeographic(gt, info.Width, info.Height) {
		kind, srid = CoordinateSystemGeographic, 4326
	}
	if source.SRID != 0 {
		srid = source.SRID
		if srid == 4326 {
			kind = CoordinateSystemGeographic
		} else if kind != CoordinateSystemGeographic {
			kind = CoordinateSystemProjected
		}
	}

	switch {
	case hasGeoTransform && kind.IsGeoreferenced():
		sector, err := SectorFromGeoTransform(kind, srid, gt, info.Width, info.Height)
		if err != nil {
			return err
		}
		info.CoordinateSystem = kind
		info.SRID = srid
		info.GeoTransform = gt
		info.Sector = sector
	default:
		info.CoordinateSystem = CoordinateSystemUnknown
	}
	return nil
}

// looksGeographic returns true if the extent of a grid fits in
// longitude/latitude bounds.
func looksGeographic(gt GeoTransform, width, height int) bool {
	minX, minY, maxX, maxY := gt.Bounds(width, height)
	return -180 <= minX && maxX <= 360 && -90 <= minY && maxY <= 90
}

// metadataFromInfo returns the Metadata corresponding to info.
func metadataFromInfo(info *HandleInfo) *Metadata {
	metadata := &Metadata{
		PixelFormat:      info.PixelFormat,
		DataType:         info.DataType,
		BandCount:        info.BandCount,
		NoData:           info.NoData,
		SRID:             info.SRID,
		CoordinateSystem: info.CoordinateSystem,
		ColorModel:       info.ColorModel,
		Size: Size{
			Width:  info.Width,
			Height: info.Height,
		},
	}
	if info.CoordinateSystem != CoordinateSystemUnknown {
		sector := info.Sector
		metadata.Sector = &sector
	}
	return metadata
}
