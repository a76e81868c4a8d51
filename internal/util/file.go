package util

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ValidateMimeType sniffs the first 512 bytes of reader and checks them against
// allowedTypes, which may hold prefixes ("image/") or full types.
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, nil
		}
	}

	return mimeType, errors.New("invalid file type: " + mimeType)
}

// DecodeDataURL decodes a "data:<mime>;base64,<payload>" string as produced by
// a browser canvas export.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, "", fmt.Errorf("%w: not a data URL", ErrValidation)
	}
	comma := strings.IndexByte(dataURL, ',')
	if comma < 0 {
		return nil, "", fmt.Errorf("%w: malformed data URL", ErrValidation)
	}
	meta := dataURL[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("%w: data URL must be base64 encoded", ErrValidation)
	}
	mimeType := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(dataURL[comma+1:])
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ValidateMimeType(bytes.NewReader(data), AllowedImageTypes); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return data, mimeType, nil
}

// ExtensionFor picks a file extension for an upload.
func ExtensionFor(filename, mimeType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return strings.ToLower(ext)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	switch strings.TrimSpace(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/webm", "audio/webm":
		return ".webm"
	case "application/ogg", "audio/ogg":
		return ".ogg"
	case "audio/wave", "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	}
	return ".bin"
}

// GenerateFileKey returns a random object name.
func GenerateFileKey() string {
	return uuid.New().String()
}
