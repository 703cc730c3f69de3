package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// PublicPath is the URL path under which stored files are served.
const PublicPath = "/public/uploads"

// fileTypes maps accepted declared content types to the stored extension.
var fileTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpg",
}

// sniffLimit is how much of a file is read to detect its real type.
const sniffLimit = 3072

type Storage struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

func NewStorage(dir string, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &Storage{dir: dir, logger: logger, now: time.Now}, nil
}

func (s *Storage) Dir() string { return s.dir }

// Save validates and writes one uploaded image and returns its stored name.
func (s *Storage) Save(fh *multipart.FileHeader) (string, error) {
	ext, ok := fileTypes[strings.ToLower(fh.Header.Get("Content-Type"))]
	if !ok {
		return "", domain.ErrInvalidImageType.WithMessage("content type %q is not an accepted image", fh.Header.Get("Content-Type"))
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if _, ok := fileTypes[mimetype.Detect(head).String()]; !ok {
		return "", domain.ErrInvalidImageType.WithMessage("file %q is not a png or jpeg image", fh.Filename)
	}

	name, dst, err := s.create(fh.Filename, ext)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), src)); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	s.logger.Info("Upload stored", zap.String("file", name), zap.Int64("size", fh.Size))
	return name, nil
}

// SaveAll stores every file or none: files already written are removed when
// a later one fails.
func (s *Storage) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	names := make([]string, 0, len(files))
	for _, fh := range files {
		name, err := s.Save(fh)
		if err != nil {
			s.Remove(names...)
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Remove deletes stored files, logging failures.
func (s *Storage) Remove(names ...string) {
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, filepath.Base(name))); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove upload", zap.String("file", name), zap.Error(err))
		}
	}
}

// create opens a new file named "<original>-<unix millis>.<ext>". Two uploads
// with the same name in the same millisecond get a numeric suffix.
func (s *Storage) create(original, ext string) (string, *os.File, error) {
	stem := fmt.Sprintf("%s-%d", baseName(original), s.now().UnixMilli())
	name := stem + "." + ext
	for i := 1; ; i++ {
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return name, f, nil
		}
		if !os.IsExist(err) || i > 100 {
			return "", nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		name = fmt.Sprintf("%s-%d.%s", stem, i, ext)
	}
}

// baseName keeps only the last path element of a client file name, with
// spaces turned into dashes.
func baseName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = strings.ReplaceAll(strings.TrimSpace(base), " ", "-")
	if base == "" || base == "." || base == "/" {
		return "upload"
	}
	return base
}

// URL joins a public base URL and a stored file name.
func URL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + PublicPath + "/" + name
}
