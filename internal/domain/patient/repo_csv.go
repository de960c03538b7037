package patient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/telemetry"
)

// CSVRepository keeps every record in memory and rewrites the whole file
// after each mutation. The file is truncated and written in place, so a
// crash mid-write can leave it truncated. Nothing guards against a second
// process using the same file.
type CSVRepository struct {
	mu      sync.Mutex
	path    string
	records []*Record
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// NewCSVRepo creates a repository backed by the file at path. Call Load
// before using it. metrics may be nil.
func NewCSVRepo(path string, logger zerolog.Logger, metrics *telemetry.Metrics) *CSVRepository {
	return &CSVRepository{
		path:    path,
		logger:  logger.With().Str("store", path).Logger(),
		metrics: metrics,
	}
}

func (r *CSVRepository) Path() string {
	return r.path
}

// StoreStats is reported by the health endpoint.
type StoreStats struct {
	Path     string    `json:"path"`
	Records  int       `json:"records"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// Check reports whether the store file is still present. It does not
// re-read the file.
func (r *CSVRepository) Check(_ context.Context) (interface{}, error) {
	r.mu.Lock()
	n := len(r.records)
	r.mu.Unlock()

	stats := &StoreStats{Path: r.path, Records: n}
	info, err := os.Stat(r.path)
	if err != nil {
		return stats, fmt.Errorf("%w: stat %s: %w", ErrStorage, r.path, err)
	}
	stats.Size = info.Size()
	stats.Modified = info.ModTime()
	return stats, nil
}

// Load reads the whole file into memory. A missing file is created with just
// the header; an unreadable or malformed file is an error and leaves the
// in-memory set untouched.
func (r *CSVRepository) Load(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		if dir := filepath.Dir(r.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("%w: create store directory: %w", ErrStorage, err)
			}
		}
		r.records = nil
		if err := r.persistLocked(); err != nil {
			return err
		}
		r.logger.Info().Msg("created empty record store")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStorage, r.path, err)
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return fmt.Errorf("load %s: %w", r.path, err)
	}
	r.records = records
	r.metrics.SetRecords(len(records))
	r.logger.Info().Int("records", len(records)).Msg("loaded record store")
	return nil
}

func readRecords(src io.Reader) ([]*Record, error) {
	cr := csv.NewReader(src)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header row", ErrStorage)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrStorage, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var records []*Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		rec, err := Deserialize(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *CSVRepository) FindByEmail(_ context.Context, email string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(email)
	if i < 0 {
		return nil, fmt.Errorf("find %s: %w", email, ErrNotFound)
	}
	return r.records[i].Clone(), nil
}

func (r *CSVRepository) List(_ context.Context) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Add appends rec and persists. The store is left unchanged if the email is
// already taken or the write fails.
func (r *CSVRepository) Add(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(rec.Email) >= 0 {
		return fmt.Errorf("add %s: %w", rec.Email, ErrDuplicateEmail)
	}
	prev := r.records
	r.records = append(append([]*Record(nil), prev...), rec.Clone())
	if err := r.persistLocked(); err != nil {
		r.records = prev
		return err
	}
	return nil
}

// Update replaces the stored record with the same email and persists.
func (r *CSVRepository) Update(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(rec.Email)
	if i < 0 {
		return fmt.Errorf("update %s: %w", rec.Email, ErrNotFound)
	}
	prev := r.records[i]
	r.records[i] = rec.Clone()
	if err := r.persistLocked(); err != nil {
		r.records[i] = prev
		return err
	}
	return nil
}

// Delete removes the first record with the given email and persists.
func (r *CSVRepository) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(email)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", email, ErrNotFound)
	}
	prev := r.records
	next := make([]*Record, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	r.records = next
	if err := r.persistLocked(); err != nil {
		r.records = prev
		return err
	}
	return nil
}

// Persist overwrites the file with the current in-memory set.
func (r *CSVRepository) Persist(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked()
}

func (r *CSVRepository) indexLocked(email string) int {
	for i, rec := range r.records {
		if rec.Email == email {
			return i
		}
	}
	return -1
}

func (r *CSVRepository) persistLocked() (err error) {
	start := time.Now()
	defer func() {
		r.metrics.ObservePersist(start, err)
		if err != nil {
			r.logger.Error().Err(err).Msg("persist record store")
			return
		}
		r.metrics.SetRecords(len(r.records))
		r.logger.Debug().Int("records", len(r.records)).Dur("took", time.Since(start)).Msg("persisted record store")
	}()

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrStorage, r.path, err)
	}
	if err := writeRecords(f, r.records); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStorage, r.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStorage, r.path, err)
	}
	return nil
}

func writeRecords(dst io.Writer, records []*Record) error {
	w := csv.NewWriter(dst)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(Serialize(rec)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
