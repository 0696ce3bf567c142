package gather

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/c360/gatherd/errors"
)

// DefaultRegionPath is where the data-collection process publishes the
// gather region on the controller.
const DefaultRegionPath = "/dev/shm/ppmac-gather"

// Region layout. All header fields are big-endian, matching the
// controller's native order; the sample buffers are forwarded as-is.
//
//	0   magic "PGAT"
//	4   version uint16
//	6   reserved
//	8   servo descriptor
//	40  phase descriptor
//
// Each 32-byte descriptor:
//
//	+0   items     uint8
//	+4   samples   uint32
//	+8   lineWords uint32
//	+12  typesOff  uint32  absolute offset of the type-code table
//	+16  typesCap  uint32  table capacity, in codes
//	+20  bufOff    uint32  absolute offset of the sample buffer
//	+24  bufCap    uint32  buffer capacity, in bytes
//
// The writer updates items/samples and the table/buffer contents in place;
// the offsets and capacities are fixed at region creation. Snapshot reads
// clamp every count against the recorded capacities so a torn update can
// never push a read out of bounds.
const (
	regionMagic   = "PGAT"
	regionVersion = 1

	descSize      = 32
	servoDescOff  = 8
	phaseDescOff  = 40
	regionMinSize = phaseDescOff + descSize
)

// Region is a read-only memory-mapped view of the live gather region.
// Opening it is the collaborator initialization the server requires before
// it accepts connections; Close is the matching teardown.
type Region struct {
	path string
	f    *os.File
	data []byte
}

// Ensure the mapped region satisfies the telemetry source contract.
var _ Source = (*Region)(nil)

// OpenRegion maps the gather region at path. Errors are fatal: the server
// has no degraded mode without its telemetry source.
func OpenRegion(path string) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Region", "OpenRegion", "open region file")
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.WrapFatal(err, "Region", "OpenRegion", "stat region file")
	}
	if info.Size() < regionMinSize {
		_ = f.Close()
		return nil, errors.WrapFatal(
			fmt.Errorf("region is %d bytes, need at least %d: %w", info.Size(), regionMinSize, errors.ErrBadRegion),
			"Region", "OpenRegion", "region size validation")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errors.WrapFatal(err, "Region", "OpenRegion", "map region")
	}

	r := &Region{path: path, f: f, data: data}
	if err := r.verifyHeader(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Region) verifyHeader() error {
	if string(r.data[0:4]) != regionMagic {
		return errors.WrapFatal(
			fmt.Errorf("bad magic %q: %w", r.data[0:4], errors.ErrBadRegion),
			"Region", "verifyHeader", "magic validation")
	}
	if v := binary.BigEndian.Uint16(r.data[4:6]); v != regionVersion {
		return errors.WrapFatal(
			fmt.Errorf("unsupported region version %d: %w", v, errors.ErrBadRegion),
			"Region", "verifyHeader", "version validation")
	}
	return nil
}

// Path returns the region file path.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region and closes the file. The Region must not be used
// afterwards.
func (r *Region) Close() error {
	var firstErr error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			firstErr = errors.Wrap(err, "Region", "Close", "unmap region")
		}
		r.data = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "Region", "Close", "close region file")
		}
		r.f = nil
	}
	return firstErr
}

func (r *Region) descOff(m Mode) int {
	if m == Phase {
		return phaseDescOff
	}
	return servoDescOff
}

// window returns the in-bounds slice [off, off+n), shrinking n when the
// recorded offsets point past the mapping.
func (r *Region) window(off, n uint32) []byte {
	size := uint32(len(r.data))
	if off >= size {
		return nil
	}
	if n > size-off {
		n = size - off
	}
	return r.data[off : off+n]
}

// TypeInfo implements Source. The channel count is clamped to the type
// table's capacity; missing table entries read as zero codes.
func (r *Region) TypeInfo(m Mode) (uint8, []TypeCode) {
	d := r.descOff(m)
	items := r.data[d]
	typesOff := binary.BigEndian.Uint32(r.data[d+12 : d+16])
	typesCap := binary.BigEndian.Uint32(r.data[d+16 : d+20])

	n := uint32(items)
	if n > typesCap {
		n = typesCap
	}
	table := r.window(typesOff, n*2)

	types := make([]TypeCode, n)
	for i := range types {
		if (i+1)*2 <= len(table) {
			types[i] = TypeCode(binary.BigEndian.Uint16(table[i*2 : i*2+2]))
		}
	}
	return uint8(n), types
}

// Data implements Source. Both counts are clamped so the reported rows
// always fit the buffer capacity, whatever the descriptor claims.
func (r *Region) Data(m Mode) (uint32, uint32, []byte) {
	d := r.descOff(m)
	samples := binary.BigEndian.Uint32(r.data[d+4 : d+8])
	lineWords := binary.BigEndian.Uint32(r.data[d+8 : d+12])
	bufOff := binary.BigEndian.Uint32(r.data[d+20 : d+24])
	bufCap := binary.BigEndian.Uint32(r.data[d+24 : d+28])

	// A line wider than the whole buffer cannot hold even one row, so the
	// descriptor is torn. Clamping lineWords first also keeps lineBytes
	// from wrapping 32-bit arithmetic.
	if lineWords > bufCap/4 {
		lineWords = bufCap / 4
	}
	lineBytes := lineWords * 4
	if lineBytes == 0 {
		samples = 0
	} else if samples > bufCap/lineBytes {
		samples = bufCap / lineBytes
	}
	return samples, lineWords, r.window(bufOff, lineBytes*samples)
}
