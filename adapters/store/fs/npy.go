package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// EncodeNPY serializes values as a one-dimensional little-endian float64
// array in NumPy format version 1.0.
func EncodeNPY(values []float64) []byte {
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d,), }", len(values))
	// magic(6) + version(2) + header length(2) + header + '\n', padded to 64
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Grow(len(npyMagic) + 4 + len(header) + 8*len(values))
	buf.Write(npyMagic)
	buf.WriteByte(1)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)

	word := make([]byte, 8)
	for _, v := range values {
		binary.LittleEndian.PutUint64(word, math.Float64bits(v))
		buf.Write(word)
	}
	return buf.Bytes()
}

// DecodeNPY reads a one-dimensional '<f8' array written in NumPy format
// version 1.x or 2.x.
func DecodeNPY(data []byte) ([]float64, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(npyMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}
	version := make([]byte, 2)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, fmt.Errorf("npy version: %w", err)
	}

	var headerLen int
	switch version[0] {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("unsupported npy version %d.%d", version[0], version[1])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("npy header: %w", err)
	}
	n, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}

	body := data[len(data)-r.Len():]
	if len(body) != 8*n {
		return nil, fmt.Errorf("npy body has %d bytes, expected %d", len(body), 8*n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[8*i:]))
	}
	return out, nil
}

// parseNPYHeader checks dtype and order and returns the element count.
func parseNPYHeader(h string) (int, error) {
	if !strings.Contains(h, "'descr': '<f8'") {
		return 0, fmt.Errorf("npy dtype is not '<f8': %s", strings.TrimSpace(h))
	}
	if strings.Contains(h, "'fortran_order': True") {
		return 0, fmt.Errorf("fortran-ordered npy arrays are not supported")
	}
	start := strings.Index(h, "'shape': (")
	if start < 0 {
		return 0, fmt.Errorf("npy header has no shape")
	}
	rest := h[start+len("'shape': ("):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return 0, fmt.Errorf("npy header shape is unterminated")
	}
	dims := strings.Split(strings.TrimSuffix(strings.TrimSpace(rest[:end]), ","), ",")
	if len(dims) != 1 {
		return 0, fmt.Errorf("npy array is not one-dimensional: (%s)", rest[:end])
	}
	n, err := strconv.Atoi(strings.TrimSpace(dims[0]))
	if err != nil {
		return 0, fmt.Errorf("npy shape: %w", err)
	}
	return n, nil
}
