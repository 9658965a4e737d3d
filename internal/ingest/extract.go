package ingest

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// SupportedExtensions lists the extensions this ingestor can extract
// text from. Unsupported extensions are skipped.
var SupportedExtensions = map[string]bool{
	".md": true, ".txt": true, ".markdown": true,
	".html": true, ".htm": true,
	".pdf": true,
}

// Extract reads path and returns its plain-text content, dispatching on
// file extension.
func Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".txt", ".markdown":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(b), nil
	case ".html", ".htm":
		return extractHTML(path)
	case ".pdf":
		return extractPDF(path)
	default:
		return "", fmt.Errorf("unsupported extension %q", ext)
	}
}

func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	base, _ := url.Parse("file://" + path)
	article, err := readability.FromReader(f, base)
	if err != nil {
		return "", fmt.Errorf("readability %s: %w", path, err)
	}
	text, err := md.ConvertString(article.Content)
	if err != nil {
		return "", fmt.Errorf("html-to-markdown %s: %w", path, err)
	}
	return text, nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// IsHidden reports whether any component of path starts with a dot.
func IsHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// IsExcluded reports whether path has a component matching one of the
// excluded directory names.
func IsExcluded(path string, excludeDirs []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, part := range parts {
		for _, ex := range excludeDirs {
			if part == ex {
				return true
			}
		}
	}
	return false
}
