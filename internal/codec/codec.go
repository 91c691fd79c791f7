package codec

import (
	"fmt"

	"ensemblestore/pkg/domain"
)

// DecodeMatrix parses payload data in the given format into a matrix.
// Tabular formats carry labels; JSON and NumPy do not.
func DecodeMatrix(format Format, data []byte) (domain.FloatMatrix, error) {
	switch format {
	case FormatJSON:
		return DecodeJSON(data)
	case FormatNumpy:
		return DecodeNumpy(data)
	case FormatCSV:
		frame, err := DecodeCSV(data)
		if err != nil {
			return domain.FloatMatrix{}, err
		}
		return frame.Matrix(), nil
	case FormatParquet:
		frame, err := DecodeParquet(data)
		if err != nil {
			return domain.FloatMatrix{}, err
		}
		return frame.Matrix(), nil
	default:
		return domain.FloatMatrix{}, fmt.Errorf("unsupported matrix format %q", format)
	}
}

// EncodeMatrix renders the matrix in the given format. rowLabels overrides
// the tabular row index and is ignored by JSON and NumPy.
func EncodeMatrix(format Format, m domain.FloatMatrix, rowLabels []string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return EncodeJSON(m)
	case FormatNumpy:
		return EncodeNumpy(m)
	case FormatCSV:
		frame, err := FrameFromMatrix(m, rowLabels)
		if err != nil {
			return nil, err
		}
		return EncodeCSV(frame)
	case FormatParquet:
		frame, err := FrameFromMatrix(m, rowLabels)
		if err != nil {
			return nil, err
		}
		return EncodeParquet(frame)
	default:
		return nil, fmt.Errorf("unsupported matrix format %q", format)
	}
}
