package localstorage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gamefinder/internal/core/domain"
)

// CSVSource implements ports.UsernameSource for a CSV file with a header row.
type CSVSource struct {
	Path   string
	Column string
}

// NewCSVSource creates a new CSVSource reading usernames from column.
func NewCSVSource(path, column string) *CSVSource {
	return &CSVSource{Path: path, Column: column}
}

// Load reads the whole file. Every failure is an *domain.InputError.
func (s *CSVSource) Load(ctx context.Context) (*domain.InputTable, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, &domain.InputError{Path: s.Path, Err: err}
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 0

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.InputError{Path: s.Path, Err: errors.New("no data in file")}
	}
	if err != nil {
		return nil, &domain.InputError{Path: s.Path, Err: fmt.Errorf("error parsing header: %w", err)}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == s.Column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, &domain.InputError{Path: s.Path, Err: fmt.Errorf("missing column %q", s.Column)}
	}

	table := &domain.InputTable{Header: header}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.InputError{Path: s.Path, Err: fmt.Errorf("error parsing file: %w", err)}
		}
		table.Rows = append(table.Rows, domain.InputRow{
			Index:    len(table.Rows),
			Username: strings.TrimSpace(record[col]),
			Fields:   record,
		})
	}
	return table, nil
}

// CSVPlayerSink implements ports.PlayerSink. The first batch truncates the
// file and writes the header; later batches append rows only.
type CSVPlayerSink struct {
	Path string

	mu      sync.Mutex
	started bool
}

// NewCSVPlayerSink creates a new CSVPlayerSink.
func NewCSVPlayerSink(path string) *CSVPlayerSink {
	return &CSVPlayerSink{Path: path}
}

// WritePlayers writes one batch of qualifying rows.
func (s *CSVPlayerSink) WritePlayers(ctx context.Context, header []string, rows []domain.InputRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !s.started {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	records := make([][]string, 0, len(rows)+1)
	if !s.started {
		records = append(records, header)
	}
	for _, row := range rows {
		records = append(records, row.Fields)
	}

	if err := writeCSV(s.Path, flags, records); err != nil {
		return err
	}
	s.started = true
	return nil
}

// CSVLinkSink implements ports.LinkSink with a Streamer,URL file.
type CSVLinkSink struct {
	Path string
}

// NewCSVLinkSink creates a new CSVLinkSink.
func NewCSVLinkSink(path string) *CSVLinkSink {
	return &CSVLinkSink{Path: path}
}

// WriteLinks writes all links, replacing any previous file.
func (s *CSVLinkSink) WriteLinks(ctx context.Context, links []domain.ContentLink) error {
	records := make([][]string, 0, len(links)+1)
	records = append(records, []string{"Streamer", "URL"})
	for _, l := range links {
		records = append(records, []string{l.Channel, l.URL})
	}
	return writeCSV(s.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, records)
}

func writeCSV(path string, flags int, records [][]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	if err := w.WriteAll(records); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
