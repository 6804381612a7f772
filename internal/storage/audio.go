// Package storage keeps received uploads on local disk until a job takes
// ownership of them.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// SaveUpload copies an uploaded file into dir under a unique temp name and
// returns its path. A file larger than maxBytes is rejected and nothing is
// left behind. maxBytes <= 0 disables the check.
func SaveUpload(file *multipart.FileHeader, dir string, maxBytes int64) (string, error) {
	if file == nil {
		return "", errors.New("no file")
	}
	if maxBytes > 0 && file.Size > maxBytes {
		return "", ErrTooLarge
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	out, err := os.CreateTemp(dir, "upload_*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	dst := out.Name()

	if err := saveMultipartFile(file, out, maxBytes); err != nil {
		os.Remove(dst)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return dst, nil
}

/* helper */
func saveMultipartFile(file *multipart.FileHeader, out *os.File, maxBytes int64) error {
	src, err := file.Open()
	if err != nil {
		out.Close()
		return err
	}
	defer src.Close()

	var r io.Reader = src
	if maxBytes > 0 {
		r = io.LimitReader(src, maxBytes+1)
	}

	n, err := out.ReadFrom(r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if maxBytes > 0 && n > maxBytes {
		return ErrTooLarge
	}
	return nil
}
