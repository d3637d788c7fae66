package model

import (
	"bytes"
	"image"
	_ "image/gif" // register decoders for image.DecodeConfig
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Logo is an uploaded image printed below the header. Data holds the
// uploaded bytes for the lifetime of the request, Path is only set when the
// upload was also written to the uploads directory.
type Logo struct {
	Name   string
	Path   string
	Format string // fpdf image type: PNG, JPG or GIF
	Data   []byte
}

// fpdfImageType maps the names of the image package to the names fpdf
// expects.
var fpdfImageType = map[string]string{
	"png":  "PNG",
	"jpeg": "JPG",
	"gif":  "GIF",
}

// AllowedFile reports whether the file name has one of the allowed
// extensions (case-insensitive).
func AllowedFile(filename string, allowed []string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// SanitizeFilename returns a file name that is safe to use in the uploads
// directory. Non-ASCII characters are dropped after NFKD normalization, path
// separators become underscores and everything except letters, digits,
// '_', '.' and '-' is removed. The result may be empty.
func SanitizeFilename(filename string) string {
	filename = norm.NFKD.String(filename)
	var ascii strings.Builder
	for _, r := range filename {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}
	filename = strings.NewReplacer("/", " ", "\\", " ").Replace(ascii.String())
	filename = strings.Join(strings.Fields(filename), "_")

	var sb strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			sb.WriteRune(r)
		}
	}
	return strings.Trim(sb.String(), "._")
}

// AcceptLogo checks an uploaded logo and returns nil if it is not usable:
// no file name, an extension that is not allowed, a file name that is empty
// after sanitizing, too many bytes or content that is not an image. A
// rejected upload is not an error, the invoice is just rendered without
// logo.
func AcceptLogo(cfg UploadConfig, filename string, data []byte, logger *slog.Logger) *Logo {
	if filename == "" || len(data) == 0 {
		return nil
	}
	if !AllowedFile(filename, cfg.AllowedExtensions) {
		logger.Debug("logo rejected", "filename", filename, "reason", "extension")
		return nil
	}
	name := SanitizeFilename(filename)
	if name == "" {
		logger.Debug("logo rejected", "filename", filename, "reason", "filename")
		return nil
	}
	if cfg.MaxLogoBytes > 0 && int64(len(data)) > cfg.MaxLogoBytes {
		logger.Debug("logo rejected", "filename", filename, "reason", "size", "size", len(data))
		return nil
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || fpdfImageType[format] == "" {
		logger.Debug("logo rejected", "filename", filename, "reason", "content", "error", err)
		return nil
	}

	logo := &Logo{Name: name, Format: fpdfImageType[format], Data: data}
	if cfg.PersistUploads {
		if err = ensureDir(cfg.Dir); err == nil {
			p := filepath.Join(cfg.Dir, name)
			if err = os.WriteFile(p, data, 0644); err == nil {
				logo.Path = p
			}
		}
		if err != nil {
			logger.Warn("cannot store logo, using it from memory", "filename", name, "error", err)
		}
	}
	return logo
}

// imageData returns the logo bytes and their fpdf image type. ok is false
// when there is nothing to print, for example when only a path is known
// and the file no longer exists.
func (l *Logo) imageData() (data []byte, format string, ok bool) {
	if l == nil {
		return nil, "", false
	}
	data = l.Data
	if len(data) == 0 {
		if l.Path == "" {
			return nil, "", false
		}
		var err error
		if data, err = os.ReadFile(l.Path); err != nil {
			return nil, "", false
		}
	}
	format = l.Format
	if format == "" {
		_, f, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", false
		}
		format = fpdfImageType[f]
	}
	return data, format, format != ""
}

func ensureDir(dirName string) error {
	err := os.MkdirAll(dirName, 0755)
	if err != nil {
		return err
	}
	return nil
}
