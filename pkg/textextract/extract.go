package textextract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedType = errors.New("unsupported file type")

type ExtractedText struct {
	Content  string
	Pages    int
	Metadata map[string]string
}

type kind string

const (
	kindPDF  kind = "pdf"
	kindDOCX kind = "docx"
	kindText kind = "txt"
)

var kinds = map[string]kind{
	".pdf":            kindPDF,
	"pdf":             kindPDF,
	"application/pdf": kindPDF,
	".docx":           kindDOCX,
	"docx":            kindDOCX,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": kindDOCX,
	".txt":             kindText,
	"txt":              kindText,
	"text/plain":       kindText,
	".md":              kindText,
	"text/markdown":    kindText,
	".csv":             kindText,
	"text/csv":         kindText,
	"application/json": kindText,
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

// Supported reports whether Extract understands the content type or extension.
func Supported(fileType string) bool {
	_, ok := kinds[normalize(fileType)]
	return ok
}

// ResolveContentType picks the content type to extract with: the declared one
// when it is understood, otherwise one inferred from the filename extension.
func ResolveContentType(declared, filename string) (string, bool) {
	if Supported(declared) && strings.Contains(declared, "/") {
		return normalize(declared), true
	}
	ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

func SupportedTypes() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".csv"}
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch kinds[normalize(fileType)] {
	case kindPDF:
		return extractPDF(data, size)
	case kindDOCX:
		return extractDOCX(data, size)
	case kindText:
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// normalize strips MIME parameters such as "; charset=utf-8".
func normalize(fileType string) string {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if mt, _, err := mime.ParseMediaType(ft); err == nil {
		return mt
	}
	return ft
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content: buf.String(),
		Pages:   numPages,
		Metadata: map[string]string{
			"type": string(kindPDF),
		},
	}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	for _, f := range reader.File {
		if filepath.Base(f.Name) != "document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}

		return &ExtractedText{
			Content: stripXMLTags(string(content)),
			Pages:   1,
			Metadata: map[string]string{
				"type": string(kindDOCX),
			},
		}, nil
	}

	return nil, fmt.Errorf("open DOCX: word/document.xml missing")
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	_, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("read TXT: content is not valid UTF-8")
	}

	return &ExtractedText{
		Content: string(bytes.TrimSpace(buf)),
		Pages:   1,
		Metadata: map[string]string{
			"type": string(kindText),
		},
	}, nil
}

func stripXMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}
