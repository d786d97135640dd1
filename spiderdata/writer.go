package spiderdata

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/heavyparts/parts_site_builder/partcatalog"
)

// RecordWriter appends records to a JSON Lines file from a single goroutine.
// Every line is synced to disk before the next one so an interrupted crawl
// leaves a valid log that can be resumed.
type RecordWriter struct {
	file    *os.File
	records chan Record
	done    chan struct{}

	mu      sync.Mutex
	err     error
	written int
}

// NewRecordWriter opens (or creates) path for appending
func NewRecordWriter(path string) (*RecordWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open scrape log: %w", err)
	}
	if err := terminateLastLine(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("open scrape log: %w", err)
	}
	w := &RecordWriter{
		file:    file,
		records: make(chan Record, 64),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// terminateLastLine ends a line cut short by a crash, so the next record starts on its own line
func terminateLastLine(file *os.File) error {
	info, err := file.Stat()
	if err != nil || info.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = file.Write([]byte{'\n'})
	return err
}

// Write queues a record. It must not be called after Close.
func (w *RecordWriter) Write(rec Record) {
	w.records <- rec
}

func (w *RecordWriter) run() {
	defer close(w.done)
	enc := json.NewEncoder(w.file)
	enc.SetEscapeHTML(false)
	for rec := range w.records {
		err := enc.Encode(rec)
		if err == nil {
			err = w.file.Sync()
		}
		w.mu.Lock()
		if err != nil && w.err == nil {
			w.err = err
		}
		if err == nil {
			w.written++
		}
		w.mu.Unlock()
	}
}

// Written is the number of records on disk so far
func (w *RecordWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close drains the queue and closes the file, returning the first write error
func (w *RecordWriter) Close() error {
	close(w.records)
	<-w.done
	closeErr := w.file.Close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return fmt.Errorf("write scrape log: %w", w.err)
	}
	return closeErr
}

// Seen holds what an existing scrape log already covers
type Seen struct {
	URLs  map[string]bool
	Parts map[string]bool
}

// LoadSeen reads an existing scrape log. A missing file is an empty log.
func LoadSeen(path string) (Seen, error) {
	seen := Seen{URLs: map[string]bool{}, Parts: map[string]bool{}}
	records, err := ReadRecords(path)
	if err != nil {
		return seen, err
	}
	for _, rec := range records {
		if rec.URL != "" {
			u, _ := CleanURL(rec.URL)
			seen.URLs[u] = true
		}
		if key := partcatalog.NormalizePartNumber(rec.PartNumber); key != "" {
			seen.Parts[key] = true
		}
	}
	return seen, nil
}

// ReadRecords loads every well formed line of a scrape log. A line cut short by
// a crash is skipped.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open scrape log: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 20*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read scrape log: %w", err)
	}
	return records, nil
}
