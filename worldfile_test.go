package mosaic_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-mosaic"
)

func TestReadWorldFile(t *testing.T) {
	gt, err := mosaic.ReadWorldFile(strings.NewReader(strings.Join([]string{
		"0.5",
		"0",
		"0",
		"-0.5",
		"100.25",
		"49.75",
		"",
	}, "\n")))
	assert.NoError(t, err)
	assert.Equal(t, mosaic.GeoTransform{100, 0.5, 0, 50, 0, -0.5}, gt)

	_, err = mosaic.ReadWorldFile(strings.NewReader("1\n2\n3\n"))
	assert.True(t, errors.Is(err, mosaic.ErrSourceUnreadable))

	_, err = mosaic.ReadWorldFile(strings.NewReader("1\n2\n3\n4\nfive\n6\n"))
	assert.True(t, errors.Is(err, mosaic.ErrSourceUnreadable))
}
