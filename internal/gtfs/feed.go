package gtfs

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Row is one parsed feed record, keyed by the header field names.
type Row map[string]string

// Get returns a field value, empty when the column is absent or the record
// was shorter than the header.
func (r Row) Get(key string) string {
	return r[key]
}

// ErrFileMissing marks an archive member that is not present. Optional files
// (calendar.txt and friends) are skipped rather than failing the import.
var ErrFileMissing = errors.New("gtfs: file not present in archive")

// Archive wraps a downloaded GTFS ZIP.
type Archive struct {
	zr *zip.Reader
}

// OpenArchive opens a GTFS ZIP held in memory. A malformed archive fails the
// whole import for that feed.
func OpenArchive(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("gtfs: open zip: %w", err)
	}
	return &Archive{zr: zr}, nil
}

// findFile matches by base name, case-insensitive. GTFS-JP feeds sometimes
// nest everything under a top-level directory.
func (a *Archive) findFile(name string) (*zip.File, error) {
	for _, f := range a.zr.File {
		if strings.EqualFold(path.Base(f.Name), name) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFileMissing, name)
}

// Table extracts and parses the named member file. Missing members return
// ErrFileMissing so callers can treat the table as optional.
func (a *Archive) Table(name string) ([]Row, error) {
	f, err := a.findFile(name)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("gtfs: open %s: %w", name, err)
	}
	defer rc.Close()

	rows, err := ParseTable(rc)
	if err != nil {
		return nil, fmt.Errorf("gtfs: parse %s: %w", name, err)
	}
	return rows, nil
}

// ParseTable reads a header-row-delimited GTFS text table into rows keyed by
// column name. Quoted fields may contain literal commas; a BOM on the first
// header field is stripped; a header-only or empty file yields zero rows.
func ParseTable(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// malformed line, keep going with the rest of the file
			continue
		}
		if err != nil {
			// read errors are sticky (truncated member), bail out
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := make(Row, len(names))
		empty := true
		for i, name := range names {
			if name == "" || i >= len(record) {
				continue
			}
			v := strings.TrimSpace(record[i])
			row[name] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
