package utils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// MaxRequestSize bounds multipart bodies held in memory.
const MaxRequestSize = 512 << 20

var ErrNoPayload = errors.New("no suitable files found")

type MultipartResult struct {
	File       string
	Properties Properties
}

type Properties struct {
	FeatureCollection string
	// Selection holds the ids from a comma separated "select" field.
	Selection []int64
	// Format is "geojson" (default) or "zip".
	Format string
}

// ReadMultiPartForm reads the uploaded file under fileKey and the known
// form fields.
func ReadMultiPartForm(r *http.Request, fileKey string) (MultipartResult, error) {
	var result MultipartResult
	if err := r.ParseMultipartForm(MaxRequestSize); err != nil {
		return result, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	result.Properties.FeatureCollection = r.FormValue("featureCollection")
	result.Properties.Format = r.FormValue("format")

	sel, err := ParseSelection(r.FormValue("select"))
	if err != nil {
		return result, err
	}
	result.Properties.Selection = sel

	if headers := r.MultipartForm.File[fileKey]; len(headers) > 0 {
		file, err := headers[0].Open()
		if err != nil {
			return result, fmt.Errorf("failed to open %s: %w", fileKey, err)
		}
		defer file.Close()

		fullFile, err := io.ReadAll(file)
		if err != nil {
			return result, fmt.Errorf("failed to read %s: %w", fileKey, err)
		}
		result.File = string(fullFile)
	}
	return result, nil
}

// Payload returns the feature collection to process: the uploaded file,
// else the featureCollection field.
func (m MultipartResult) Payload() (string, error) {
	switch {
	case m.File != "":
		return m.File, nil
	case m.Properties.FeatureCollection != "":
		return m.Properties.FeatureCollection, nil
	}
	return "", ErrNoPayload
}

// ParseSelection parses "1, 4,7" into ids.
func ParseSelection(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid feature id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
