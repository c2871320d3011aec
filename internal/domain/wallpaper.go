package domain

import (
	"bufio"
	"fmt"
	"strings"
)

// File names inside a cached wallpaper directory.
const (
	ManifestFileName = "manifest"
	ImageFileName    = "image"
)

// Wallpaper is one archive entry, identified by its start date.
type Wallpaper struct {
	StartDate     string // e.g. 20240103; also the cache directory name
	EndDate       string
	URL           string // absolute image URL
	Description   string // copyright text
	Title         string
	CopyrightLink string
}

// Manifest returns the manifest written next to the image.
func (w *Wallpaper) Manifest() Manifest {
	return Manifest{Description: w.Description, URL: w.URL}
}

// Manifest is the small key=value text file stored with every cached image.
type Manifest struct {
	Description string
	URL         string
}

// Encode renders the manifest as description=... and url=... lines.
func (m Manifest) Encode() []byte {
	return []byte(fmt.Sprintf("description=%s\nurl=%s\n", oneLine(m.Description), oneLine(m.URL)))
}

// ParseManifest reads key=value lines. Unknown keys and lines without "=" are ignored.
func ParseManifest(data []byte) Manifest {
	var m Manifest
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "description":
			m.Description = value
		case "url":
			m.URL = value
		}
	}
	return m
}

// oneLine keeps a value from breaking the line-oriented manifest format.
func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
