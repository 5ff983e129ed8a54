// Package ccittg4 encodes bilevel rasters with the ITU-T T.6 (CCITT Group 4)
// two-dimensional coding scheme used by TIFF compression 4 and the PDF
// CCITTFaxDecode filter with K < 0.
package ccittg4

import (
	"bytes"
	"fmt"
)

type BitWriter struct {
	buf   bytes.Buffer
	bits  uint8
	count int
}

func (bw *BitWriter) WriteBit(bit uint8) {
	bw.bits = (bw.bits << 1) | (bit & 1)
	bw.count++
	if bw.count == 8 {
		bw.buf.WriteByte(bw.bits)
		bw.bits = 0
		bw.count = 0
	}
}

// WriteCode writes a code given as a string of '0' and '1'.
func (bw *BitWriter) WriteCode(code string) {
	for i := 0; i < len(code); i++ {
		bw.WriteBit(code[i] - '0')
	}
}

func (bw *BitWriter) WriteBits(code uint16, length int) {
	for i := length - 1; i >= 0; i-- {
		bw.WriteBit(uint8((code >> i) & 1))
	}
}

// Flush pads the pending byte with zero bits.
func (bw *BitWriter) Flush() {
	for bw.count != 0 {
		bw.WriteBit(0)
	}
}

// WriteEOFB writes the end-of-facsimile-block (two EOL codes) and pads to a
// byte boundary.
func (bw *BitWriter) WriteEOFB() {
	bw.WriteCode(eol)
	bw.WriteCode(eol)
	bw.Flush()
}

func (bw *BitWriter) Bytes() []byte {
	return bw.buf.Bytes()
}

// PackGray packs an 8-bit gray raster into MSB-first rows where a set bit is
// a black pixel (value < 128).
func PackGray(gray []byte, width, height int) []byte {
	rowBytes := (width + 7) / 8
	out := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		dstRowStart := y * rowBytes
		srcRowStart := y * width
		var b byte
		bitPos := 7

		for x := 0; x < width; x++ {
			if gray[srcRowStart+x] < 128 {
				b |= 1 << bitPos
			}
			bitPos--
			if bitPos < 0 {
				out[dstRowStart] = b
				dstRowStart++
				b = 0
				bitPos = 7
			}
		}

		if bitPos != 7 {
			out[dstRowStart] = b
		}
	}
	return out
}

func EncodeGrayToCCITTG4(gray []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(gray) != width*height {
		return nil, fmt.Errorf("invalid gray data size: got %d, want %d", len(gray), width*height)
	}
	return EncodePacked(PackGray(gray, width, height), width, height)
}

// EncodePacked encodes packed rows (see PackGray) and terminates the data
// with EOFB.
func EncodePacked(packed []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	rowBytes := (width + 7) / 8
	if len(packed) != rowBytes*height {
		return nil, fmt.Errorf("invalid packed bits length: got %d, want %d", len(packed), rowBytes*height)
	}

	bw := &BitWriter{}
	// the line above the first row is all white
	refLine := make([]byte, rowBytes)

	for y := 0; y < height; y++ {
		curLine := packed[y*rowBytes : (y+1)*rowBytes]
		encodeLine(bw, refLine, curLine, width)
		refLine = curLine
	}

	bw.WriteEOFB()
	return bw.Bytes(), nil
}

func encodeLine(bw *BitWriter, refLine, curLine []byte, width int) {
	a0 := -1
	color := white

	for a0 < width {
		a1 := nextChange(curLine, width, a0)
		b1 := nextChange(refLine, width, a0)
		for b1 < width && pixel(refLine, b1) == color {
			b1 = nextChange(refLine, width, b1)
		}
		b2 := nextChange(refLine, width, b1)

		switch {
		case b2 < a1:
			bw.WriteCode(passCode)
			a0 = b2
		case a1-b1 >= -3 && a1-b1 <= 3:
			bw.WriteCode(verticalCodes[a1-b1+3])
			a0 = a1
			color = 1 - color
		default:
			a2 := nextChange(curLine, width, a1)
			start := a0
			if start < 0 {
				start = 0
			}
			bw.WriteCode(horizontalCode)
			writeRun(bw, a1-start, color)
			writeRun(bw, a2-a1, 1-color)
			a0 = a2
		}
	}
}

func pixel(line []byte, x int) int {
	if x < 0 {
		return white
	}
	return int(line[x>>3]>>(7-uint(x&7))) & 1
}

// nextChange returns the first changing element strictly right of pos, or
// width when the rest of the line keeps its color.
func nextChange(line []byte, width, pos int) int {
	if pos < -1 {
		pos = -1
	}
	if pos >= width {
		return width
	}
	prev := pixel(line, pos)
	for i := pos + 1; i < width; i++ {
		if pixel(line, i) != prev {
			return i
		}
	}
	return width
}

func writeRun(bw *BitWriter, run, color int) {
	term, makeup := whiteTerminatingCodes, whiteMakeupCodes
	if color == black {
		term, makeup = blackTerminatingCodes, blackMakeupCodes
	}
	for run >= 2624 {
		bw.WriteCode(sharedMakeupCodes[2560])
		run -= 2560
	}
	if run >= 64 {
		v := run / 64 * 64
		if code, ok := makeup[v]; ok {
			bw.WriteCode(code)
		} else {
			bw.WriteCode(sharedMakeupCodes[v])
		}
		run -= v
	}
	bw.WriteCode(term[run])
}
