package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"

	"graphrelay/internal/types"
)

// activeFileName is the file currently being appended to; rotated files get
// timestamped names.
const activeFileName = "audit.jsonl"

// FileSink writes one JSON line per audit record to a file on local disk,
// rotating once the active file exceeds a size threshold. Rotated files are
// optionally gzip-compressed in the background.
type FileSink struct {
	mu          sync.Mutex
	f           *os.File
	size        int64
	dir         string
	rotateBytes int64
	compress    bool
	clock       types.Clock
	logger      *slog.Logger
	compressWG  sync.WaitGroup
}

// NewFileSink opens (or creates) the audit directory and active file.
func NewFileSink(dir string, rotateBytes int64, compress bool, clock types.Clock, logger *slog.Logger) (*FileSink, error) {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rotateBytes <= 0 {
		rotateBytes = 16 << 20
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalAudit, "creating audit directory", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, activeFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalAudit, "opening audit file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, types.NewAppError(types.ErrCodeInternalAudit, "stat audit file", err)
	}

	return &FileSink{
		f:           f,
		size:        info.Size(),
		dir:         dir,
		rotateBytes: rotateBytes,
		compress:    compress,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Write appends one record as a JSON line. The write is synchronous: when it
// returns nil the record has been handed to the OS.
func (s *FileSink) Write(ctx context.Context, rec types.AuditRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "marshaling audit record", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size+int64(len(line)) > s.rotateBytes && s.size > 0 {
		if err := s.rotateLocked(ctx); err != nil {
			return err
		}
	}

	n, err := s.f.Write(line)
	s.size += int64(n)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "writing audit record", err)
	}
	return nil
}

// rotateLocked closes the active file, renames it with a timestamp, and
// reopens a fresh one. Caller holds s.mu.
func (s *FileSink) rotateLocked(ctx context.Context) error {
	if err := s.f.Close(); err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "closing audit file for rotation", err)
	}

	active := filepath.Join(s.dir, activeFileName)
	rotated := filepath.Join(s.dir, fmt.Sprintf("audit-%s.jsonl", s.clock.Now().UTC().Format("20060102T150405.000000000")))
	if err := os.Rename(active, rotated); err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "renaming rotated audit file", err)
	}

	f, err := os.OpenFile(active, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "reopening audit file", err)
	}
	s.f = f
	s.size = 0

	s.logger.InfoContext(ctx, "audit file rotated", "rotated", filepath.Base(rotated))

	if s.compress {
		s.compressWG.Add(1)
		go func() {
			defer s.compressWG.Done()
			if err := compressFile(rotated); err != nil {
				s.logger.Error("compressing rotated audit file", "file", filepath.Base(rotated), "error", err)
			}
		}()
	}
	return nil
}

// compressFile gzips src to src+".gz" and removes the original.
func compressFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Close flushes the active file and waits for any in-flight compression.
func (s *FileSink) Close() error {
	s.mu.Lock()
	err := s.f.Close()
	s.mu.Unlock()

	s.compressWG.Wait()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalAudit, "closing audit file", err)
	}
	return nil
}
