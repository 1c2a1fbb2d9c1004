package senders

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// FileSender records a session's trace to a JSONL file.
type FileSender struct {
	writer   *JSONLWriter
	filePath string
}

// NewFileSender creates the directory if needed and appends to filePath.
func NewFileSender(filePath string) (*FileSender, error) {
	writer, err := NewJSONLWriter(JSONLConfig{
		FilePath:   filePath,
		AutoFlush:  false,
		BufferSize: 4096,
		CreateDir:  true,
		FilePerm:   0644,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JSONL writer: %w", err)
	}

	return &FileSender{writer: writer, filePath: filePath}, nil
}

func (fs *FileSender) Send(point models.TracePoint) error {
	if fs.writer == nil {
		return ErrNotConfigured
	}
	return fs.writer.WriteTracePoint(point)
}

func (fs *FileSender) SendBatch(points []models.TracePoint) error {
	if fs.writer == nil {
		return ErrNotConfigured
	}
	return fs.writer.WriteBatch(points)
}

// Flush forces buffered lines to disk.
func (fs *FileSender) Flush() error {
	if fs.writer == nil {
		return nil
	}
	return fs.writer.Flush()
}

func (fs *FileSender) Close() error {
	if fs.writer == nil {
		return nil
	}
	return fs.writer.Close()
}

// GetStats returns the underlying writer statistics.
func (fs *FileSender) GetStats() WriteStats {
	if fs.writer == nil {
		return WriteStats{}
	}
	return fs.writer.GetStats()
}

// RotateFile continues recording in newFilePath.
func (fs *FileSender) RotateFile(newFilePath string) error {
	if fs.writer == nil {
		return ErrNotConfigured
	}
	if err := fs.writer.RotateFile(newFilePath); err != nil {
		return err
	}
	fs.filePath = newFilePath
	return nil
}

// Validate checks that the destination directory accepts new files.
func (fs *FileSender) Validate() error {
	if fs.writer == nil {
		return ErrNotConfigured
	}

	dir := filepath.Dir(fs.filePath)
	if !isWritable(dir) {
		return fmt.Errorf("%w: %s", ErrNotWritable, dir)
	}
	return nil
}

func isWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
