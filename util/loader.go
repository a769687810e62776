// Package util - Input discovery helpers.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ImageFile is an image found on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the number at the end of the file name, e.g. 12 for frame-12.jpg, or -1.
	Frame int
}

// IsImageFile reports whether the extension of path is a supported still image format.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

// DiscoverImages resolves the images of an image run.
//
// Arguments:
//   - path: An image file, or a directory of image files.
//
// Returns:
//   - []ImageFile: The images, ordered by frame number then name. Files in a directory that
//     are not images are skipped.
//   - error: An error if path is missing, or holds no images.
func DiscoverImages(path string) ([]ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not find input")
	}
	if !info.IsDir() {
		return []ImageFile{{Path: path, Frame: frameNumber(path)}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading directory %s", path)
	}

	var images []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		p := filepath.Join(path, entry.Name())
		images = append(images, ImageFile{Path: p, Frame: frameNumber(p)})
	}
	if len(images) == 0 {
		return nil, errors.Errorf("no images found in %s", path)
	}

	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Frame != images[j].Frame {
			return images[i].Frame < images[j].Frame
		}
		return images[i].Path < images[j].Path
	})

	return images, nil
}

func frameNumber(path string) int {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	end := len(stem)
	start := end
	for start > 0 && unicode.IsDigit(rune(stem[start-1])) {
		start--
	}
	if start == end {
		return -1
	}
	n, err := strconv.Atoi(stem[start:end])
	if err != nil {
		return -1
	}
	return n
}
