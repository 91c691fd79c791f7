// Package codec converts float matrices and tabular frames to and from the
// supported wire formats: JSON nested arrays, NumPy .npy, CSV dataframes,
// and Parquet dataframes.
package codec

import (
	"fmt"
	"strings"
)

// Format identifies one supported wire format.
type Format string

const (
	FormatJSON    Format = "application/json"
	FormatNumpy   Format = "application/x-numpy"
	FormatCSV     Format = "text/csv"
	FormatParquet Format = "application/x-parquet"
)

// mediaTypes maps normalized media types to formats. text/csv and
// application/x-dataframe are aliases.
var mediaTypes = map[string]Format{
	"application/json":        FormatJSON,
	"application/x-numpy":     FormatNumpy,
	"text/csv":                FormatCSV,
	"application/x-dataframe": FormatCSV,
	"application/x-parquet":   FormatParquet,
}

// ContentType returns the canonical media type of the format.
func (f Format) ContentType() string { return string(f) }

// Tabular reports whether the format renders matrices as labeled dataframes.
func (f Format) Tabular() bool { return f == FormatCSV || f == FormatParquet }

func normalize(mediaType string) string {
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// FromContentType resolves a request Content-Type header to a format. An
// empty header defaults to JSON.
func FromContentType(header string) (Format, error) {
	mt := normalize(header)
	if mt == "" {
		return FormatJSON, nil
	}
	if f, ok := mediaTypes[mt]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported content type %q", header)
}

// FromAccept resolves an Accept header to a response format. Wildcards and
// an empty header default to JSON. The first supported entry wins.
func FromAccept(header string) (Format, error) {
	if strings.TrimSpace(header) == "" {
		return FormatJSON, nil
	}
	for _, entry := range strings.Split(header, ",") {
		mt := normalize(entry)
		if mt == "*/*" || mt == "application/*" {
			return FormatJSON, nil
		}
		if f, ok := mediaTypes[mt]; ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported accept header %q", header)
}
