package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedExtension is returned for files outside the allowed extensions
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrFileTooLarge is returned when a file exceeds the size limit
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-byte files
	ErrEmptyFile = errors.New("file is empty")
	// ErrMissingName is returned when an upload carries no file name
	ErrMissingName = errors.New("file name is missing")
)

// FileValidator checks uploaded and local input files against the
// configured extensions and size limit. It is shared by the HTTP upload
// path and the CLI.
type FileValidator struct {
	extensions []string
	maxBytes   int64
	logger     *slog.Logger
}

// NewFileValidator creates a new file validator. Extensions are matched
// case-insensitively, with or without a leading dot; none means ".csv".
// maxBytes of 0 disables the size check.
func NewFileValidator(extensions []string, maxBytes int64, logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	if len(normalized) == 0 {
		normalized = []string{".csv"}
	}
	return &FileValidator{
		extensions: normalized,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Extensions returns the accepted extensions.
func (v *FileValidator) Extensions() []string {
	return append([]string(nil), v.extensions...)
}

// ValidateUpload checks the client-supplied name and size of an upload.
// A negative size means unknown and skips the size checks.
func (v *FileValidator) ValidateUpload(name string, size int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrMissingName
	}
	if err := v.checkExtension(name); err != nil {
		return err
	}
	if size == 0 {
		v.logger.Warn("Upload is empty", slog.String("file", name))
		return fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}
	if v.maxBytes > 0 && size > v.maxBytes {
		v.logger.Warn("Upload exceeds size limit",
			slog.String("file", name),
			slog.Int64("size", size),
			slog.Int64("max_bytes", v.maxBytes))
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, name, size, v.maxBytes)
	}
	return nil
}

// ValidateFile checks that a local input file exists, is readable and
// passes the same rules as an upload.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		v.logger.Error("Failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	if err := v.ValidateUpload(filepath.Base(path), info.Size()); err != nil {
		return err
	}

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures output directory exists or can be created
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Output directory validated",
		slog.String("directory", dir))
	return nil
}

func (v *FileValidator) checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range v.extensions {
		if ext == allowed {
			return nil
		}
	}
	v.logger.Warn("Unsupported file extension",
		slog.String("file", name),
		slog.String("extension", ext))
	return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedExtension, ext, strings.Join(v.extensions, ", "))
}
