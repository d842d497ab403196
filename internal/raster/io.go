package raster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Ext is the file extension used for raster container files.
const Ext = ".rst"

// ErrBadFormat marks a container that cannot be decoded: wrong magic,
// unsupported version, or a truncated or inconsistent payload.
var ErrBadFormat = errors.New("malformed raster file")

// Container layout (little-endian):
//
//	magic     [4]byte  "SLRS"
//	version   uint8    currently 1
//	width     uint32
//	height    uint32
//	bands     uint32
//	crsLen    uint16
//	crs       [crsLen]byte UTF-8
//	transform [6]float64
//	hasNoData uint8    0 or 1
//	noData    float64  present only when hasNoData == 1
//	pixels    [width*height*bands]float64 band-major
var magic = [4]byte{'S', 'L', 'R', 'S'}

const formatVersion = 1

// WriteFile persists a raster to path. The raster is validated first, and
// the file is written to a temporary name and renamed into place so a crash
// never leaves a torn container behind.
func WriteFile(r *Raster, path string) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := encode(w, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// ReadFile loads a complete raster container from path, rejecting anything
// that does not decode cleanly with an error wrapping ErrBadFormat.
// Structural integrity is checked here; semantic checks (CRS presence and
// the like) remain the caller's via Validate.
func ReadFile(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := bufio.NewReader(f)
	r, _, err := parseHeader(rd)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r.Pixels = make([]float64, r.Width*r.Height*r.Bands)
	if err := binary.Read(rd, binary.LittleEndian, r.Pixels); err != nil {
		return nil, fmt.Errorf("reading %s: %w: %v", path, ErrBadFormat, err)
	}
	for _, p := range r.Pixels {
		if math.IsInf(p, 0) || math.IsNaN(p) {
			return nil, fmt.Errorf("reading %s: %w: non-finite pixel value", path, ErrBadFormat)
		}
	}

	return r, nil
}

func encode(w io.Writer, r *Raster) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}

	header := []any{
		uint32(r.Width),
		uint32(r.Height),
		uint32(r.Bands),
		uint16(len(r.CRS)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, r.CRS); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, r.Transform); err != nil {
		return err
	}

	hasNoData := uint8(0)
	if r.NoData != nil {
		hasNoData = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hasNoData); err != nil {
		return err
	}
	if r.NoData != nil {
		if err := binary.Write(w, binary.LittleEndian, *r.NoData); err != nil {
			return err
		}
	}

	return binary.Write(w, binary.LittleEndian, r.Pixels)
}

// parseHeader decodes everything up to the pixel payload and returns a
// Raster with metadata filled in and a nil pixel buffer, along with the
// byte offset at which pixel data begins.
func parseHeader(rd io.Reader) (*Raster, int64, error) {
	var m [4]byte
	if _, err := io.ReadFull(rd, m[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if m != magic {
		return nil, 0, fmt.Errorf("%w: bad magic %q", ErrBadFormat, m)
	}

	var version uint8
	if err := binary.Read(rd, binary.LittleEndian, &version); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if version != formatVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, version)
	}

	var width, height, bands uint32
	var crsLen uint16
	for _, v := range []any{&width, &height, &bands, &crsLen} {
		if err := binary.Read(rd, binary.LittleEndian, v); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
	}

	// Guard against absurd headers before allocating.
	const maxPixels = 1 << 30
	if width == 0 || height == 0 || bands == 0 ||
		uint64(width)*uint64(height)*uint64(bands) > maxPixels {
		return nil, 0, fmt.Errorf("%w: implausible dimensions %dx%dx%d", ErrBadFormat, width, height, bands)
	}

	crs := make([]byte, crsLen)
	if _, err := io.ReadFull(rd, crs); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	r := &Raster{
		Width:  int(width),
		Height: int(height),
		Bands:  int(bands),
		CRS:    string(crs),
	}

	if err := binary.Read(rd, binary.LittleEndian, &r.Transform); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	var hasNoData uint8
	if err := binary.Read(rd, binary.LittleEndian, &hasNoData); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	// fixed part: magic+version+dims+crsLen+transform+nodata flag
	offset := int64(4 + 1 + 4 + 4 + 4 + 2 + len(crs) + 6*8 + 1)

	switch hasNoData {
	case 0:
	case 1:
		var nd float64
		if err := binary.Read(rd, binary.LittleEndian, &nd); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		r.NoData = &nd
		offset += 8
	default:
		return nil, 0, fmt.Errorf("%w: invalid nodata flag %d", ErrBadFormat, hasNoData)
	}

	return r, offset, nil
}
