package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText sniffs the true file type from bytes first (extensions and mime
// types lie), then extracts plain text. Supported: PDF, DOCX, PPTX, HTML,
// plaintext/markdown.
func ExtractText(name string, mimeType string, data []byte) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if len(data) == 0 {
		return "", fmt.Errorf("empty file: name=%s mime=%s", name, mimeType)
	}

	if isPDF(data) {
		return extractPDF(data)
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return "", fmt.Errorf("openxml detect failed for %s: %w", name, err)
		}
		switch kind {
		case "docx":
			return extractDOCX(data)
		case "pptx":
			return extractPPTX(data)
		default:
			return "", fmt.Errorf("unsupported openxml kind=%s name=%s", kind, name)
		}
	}
	if looksLikeHTML(data) || mt == "text/html" {
		return stripHTML(string(data)), nil
	}
	if isProbablyText(data) || strings.HasPrefix(mt, "text/") {
		return collapseWhitespace(string(data)), nil
	}
	if mt == "application/pdf" {
		return "", fmt.Errorf("file claims pdf but missing %%PDF header: name=%s", name)
	}
	return "", fmt.Errorf("unsupported file type: name=%s mime=%s", name, mimeType)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(b[:minInt(len(b), 2048)])))
	return strings.HasPrefix(s, "<!doctype") || strings.HasPrefix(s, "<html") ||
		(strings.Contains(s, "<html") && strings.Contains(s, "</html>"))
}

func isProbablyText(b []byte) bool {
	sample := b[:minInt(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	hasWord := false
	hasPpt := false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(f.Name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return "docx", nil
	case hasPpt && !hasWord:
		return "pptx", nil
	default:
		return "", fmt.Errorf("zip does not look like docx or pptx")
	}
}

func extractDOCX(zipBytes []byte) (string, error) {
	// text lives in <w:t> runs of word/document.xml
	return extractZippedXMLText(zipBytes, func(name string) bool {
		return name == "word/document.xml"
	})
}

func extractPPTX(zipBytes []byte) (string, error) {
	// text lives in <a:t> runs of ppt/slides/slideN.xml
	return extractZippedXMLText(zipBytes, func(name string) bool {
		return strings.HasPrefix(name, "ppt/slides/") && strings.HasSuffix(name, ".xml")
	})
}

func extractZippedXMLText(zipBytes []byte, match func(string) bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range zr.File {
		if !match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out.WriteString(textRunsFromXML(b))
		out.WriteString("\n")
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from openxml container")
	}
	return s, nil
}

// textRunsFromXML gathers the character data of every <t> element regardless
// of namespace (w:t in docx, a:t in pptx).
func textRunsFromXML(xmlBytes []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "t" {
			continue
		}
		var v string
		_ = dec.DecodeElement(&v, &se)
		if v != "" {
			out.WriteString(v)
			out.WriteString(" ")
		}
	}
	return out.String()
}

var htmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
