package senders

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// JSONLWriter writes trace points as one JSON object per line.
type JSONLWriter struct {
	mu        sync.Mutex
	writer    *bufio.Writer
	closer    io.Closer
	filePath  string
	filePerm  os.FileMode
	autoFlush bool

	statsMu sync.RWMutex
	stats   WriteStats
}

// WriteStats holds write counters.
type WriteStats struct {
	TotalLines       int64         `json:"total_lines"`
	TotalBytes       int64         `json:"total_bytes"`
	LastWriteTime    time.Time     `json:"last_write_time"`
	AverageWriteTime time.Duration `json:"average_write_time"`
	ErrorsCount      int64         `json:"errors_count"`
}

// JSONLConfig configures a file-backed writer.
type JSONLConfig struct {
	FilePath   string      `json:"file_path"`
	AutoFlush  bool        `json:"auto_flush"`
	BufferSize int         `json:"buffer_size"`
	CreateDir  bool        `json:"create_dir"`
	FilePerm   os.FileMode `json:"file_perm"`
}

// NewJSONLWriter opens (appending) the configured file.
func NewJSONLWriter(config JSONLConfig) (*JSONLWriter, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrNotConfigured)
	}
	if config.FilePerm == 0 {
		config.FilePerm = 0644
	}

	if config.CreateDir {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, config.FilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	w := newJSONLWriter(file, config.BufferSize, config.AutoFlush)
	w.closer = file
	w.filePath = config.FilePath
	w.filePerm = config.FilePerm
	return w, nil
}

// NewJSONLStreamWriter writes to an arbitrary stream. Close flushes but does
// not close out.
func NewJSONLStreamWriter(out io.Writer, autoFlush bool) *JSONLWriter {
	return newJSONLWriter(out, 0, autoFlush)
}

func newJSONLWriter(out io.Writer, bufferSize int, autoFlush bool) *JSONLWriter {
	var bw *bufio.Writer
	if bufferSize > 0 {
		bw = bufio.NewWriterSize(out, bufferSize)
	} else {
		bw = bufio.NewWriter(out)
	}
	return &JSONLWriter{
		writer:    bw,
		autoFlush: autoFlush,
		stats:     WriteStats{LastWriteTime: time.Now()},
	}
}

// WriteTracePoint validates and writes one point.
func (j *JSONLWriter) WriteTracePoint(point models.TracePoint) error {
	return j.WriteBatch([]models.TracePoint{point})
}

// WriteBatch validates every point first, so an invalid batch writes nothing.
func (j *JSONLWriter) WriteBatch(points []models.TracePoint) error {
	if len(points) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer == nil {
		return ErrSenderClosed
	}

	startTime := time.Now()

	lines := make([][]byte, 0, len(points))
	for _, point := range points {
		if err := point.Validate(); err != nil {
			j.recordError()
			return fmt.Errorf("trace point validation failed: %w", err)
		}
		data, err := json.Marshal(point)
		if err != nil {
			j.recordError()
			return fmt.Errorf("JSON marshaling failed: %w", err)
		}
		lines = append(lines, data)
	}

	totalBytes := 0
	for _, line := range lines {
		if _, err := j.writer.Write(line); err != nil {
			j.recordError()
			return fmt.Errorf("write failed: %w", err)
		}
		if err := j.writer.WriteByte('\n'); err != nil {
			j.recordError()
			return fmt.Errorf("newline write failed: %w", err)
		}
		totalBytes += len(line) + 1
	}

	if j.autoFlush {
		if err := j.writer.Flush(); err != nil {
			j.recordError()
			return fmt.Errorf("flush failed: %w", err)
		}
	}

	j.recordWrite(startTime, len(lines), totalBytes)
	return nil
}

// Flush pushes buffered lines to the destination.
func (j *JSONLWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer == nil {
		return ErrSenderClosed
	}
	return j.writer.Flush()
}

// Close flushes and closes the file. Calling it twice is a no-op.
func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return fmt.Errorf("final flush failed: %w", err)
		}
	}
	if j.closer != nil {
		if err := j.closer.Close(); err != nil {
			return fmt.Errorf("file close failed: %w", err)
		}
	}

	j.writer = nil
	j.closer = nil
	return nil
}

// RotateFile flushes the current file and continues in newFilePath,
// keeping the statistics.
func (j *JSONLWriter) RotateFile(newFilePath string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.filePath == "" {
		return fmt.Errorf("%w: stream writers cannot rotate", ErrNotConfigured)
	}

	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return fmt.Errorf("flush before rotate failed: %w", err)
		}
	}
	if j.closer != nil {
		if err := j.closer.Close(); err != nil {
			return fmt.Errorf("close before rotate failed: %w", err)
		}
	}

	file, err := os.OpenFile(newFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, j.filePerm)
	if err != nil {
		j.writer = nil
		j.closer = nil
		return fmt.Errorf("failed to open new file: %w", err)
	}

	j.writer = bufio.NewWriter(file)
	j.closer = file
	j.filePath = newFilePath
	return nil
}

// FilePath returns the current destination, empty for stream writers.
func (j *JSONLWriter) FilePath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.filePath
}

// GetStats returns a snapshot of the write statistics.
func (j *JSONLWriter) GetStats() WriteStats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.stats
}

// ResetStats clears the statistics.
func (j *JSONLWriter) ResetStats() {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	j.stats = WriteStats{LastWriteTime: time.Now()}
}

func (j *JSONLWriter) recordWrite(startTime time.Time, lines, bytes int) {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()

	writeTime := time.Since(startTime)
	prev := j.stats.TotalLines
	j.stats.TotalLines += int64(lines)
	j.stats.TotalBytes += int64(bytes)
	j.stats.LastWriteTime = time.Now()

	// running mean per line
	total := j.stats.AverageWriteTime*time.Duration(prev) + writeTime
	j.stats.AverageWriteTime = total / time.Duration(j.stats.TotalLines)
}

func (j *JSONLWriter) recordError() {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	j.stats.ErrorsCount++
}
