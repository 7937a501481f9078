package tiff

import (
	"encoding/binary"
	"fmt"
)

// undoPredictor reverses the predictor of info on rows of decoded data.
func undoPredictor(info *ImageInfo, data []byte, rowBytes, rows int) error {
	switch info.Predictor {
	case PredictorNone, 0:
		return nil
	case PredictorHorizontal:
		if info.SampleFormat == SampleFormatFloat || info.BitsPerSample%8 != 0 || info.BitsPerSample > 32 {
			return fmt.Errorf("%s: %w", "horizontal predictor with this sample format", ErrUnsupported)
		}

		stride := samplesPerPredictedPixel(info)
		for y := range rows {
			horizontalDecode(data[y*rowBytes:(y+1)*rowBytes], stride, info.BitsPerSample/8, info.ByteOrder)
		}
	case PredictorFloatingPoint:
		if info.SampleFormat != SampleFormatFloat || (info.BitsPerSample != 32 && info.BitsPerSample != 64) {
			return fmt.Errorf("%s: %w", "floating point predictor with this sample format", ErrUnsupported)
		}

		stride := samplesPerPredictedPixel(info)
		tmp := getBuffer(rowBytes)
		defer putBuffer(tmp)
		for y := range rows {
			floatDecode(data[y*rowBytes:(y+1)*rowBytes], tmp, stride, info.BitsPerSample/8, info.ByteOrder)
		}
	default:
		return fmt.Errorf("%s: %w", "predictor "+info.Predictor.String(), ErrUnsupported)
	}

	return nil
}

// samplesPerPredictedPixel is the distance in samples between the values a
// predictor subtracts.
func samplesPerPredictedPixel(info *ImageInfo) int {
	if info.planes() > 1 {
		return 1
	}

	return info.SamplesPerPixel
}

// horizontalDecode accumulates the differences of a row of size-byte samples.
func horizontalDecode(row []byte, stride, size int, bo binary.ByteOrder) {
	n := len(row) / size
	switch size {
	case 1:
		for i := stride; i < n; i++ {
			row[i] += row[i-stride]
		}
	case 2:
		for i := stride; i < n; i++ {
			bo.PutUint16(row[2*i:], bo.Uint16(row[2*i:])+bo.Uint16(row[2*(i-stride):]))
		}
	case 4:
		for i := stride; i < n; i++ {
			bo.PutUint32(row[4*i:], bo.Uint32(row[4*i:])+bo.Uint32(row[4*(i-stride):]))
		}
	}
}

// horizontalEncode replaces every sample of a row by its difference to the
// sample stride positions to the left.
func horizontalEncode(row []byte, stride, size int, bo binary.ByteOrder) {
	n := len(row) / size
	switch size {
	case 1:
		for i := n - 1; i >= stride; i-- {
			row[i] -= row[i-stride]
		}
	case 2:
		for i := n - 1; i >= stride; i-- {
			bo.PutUint16(row[2*i:], bo.Uint16(row[2*i:])-bo.Uint16(row[2*(i-stride):]))
		}
	case 4:
		for i := n - 1; i >= stride; i-- {
			bo.PutUint32(row[4*i:], bo.Uint32(row[4*i:])-bo.Uint32(row[4*(i-stride):]))
		}
	}
}

// floatDecode undoes the floating point predictor on one row. The encoded row
// holds the byte planes of the samples, most significant first, with the
// bytes differenced horizontally. tmp must be at least as long as row.
func floatDecode(row, tmp []byte, stride, size int, bo binary.ByteOrder) {
	for i := stride; i < len(row); i++ {
		row[i] += row[i-stride]
	}

	n := len(row) / size
	copy(tmp, row)
	for i := range n {
		for k := range size {
			// Byte k of the sample, counted from the most significant one.
			b := tmp[k*n+i]
			if bo == binary.ByteOrder(binary.LittleEndian) {
				row[i*size+size-1-k] = b
			} else {
				row[i*size+k] = b
			}
		}
	}
}

// floatEncode applies the floating point predictor to one row.
func floatEncode(row, tmp []byte, stride, size int, bo binary.ByteOrder) {
	n := len(row) / size
	copy(tmp, row)
	for i := range n {
		for k := range size {
			var b byte
			if bo == binary.ByteOrder(binary.LittleEndian) {
				b = tmp[i*size+size-1-k]
			} else {
				b = tmp[i*size+k]
			}

			row[k*n+i] = b
		}
	}

	for i := len(row) - 1; i >= stride; i-- {
		row[i] -= row[i-stride]
	}
}
