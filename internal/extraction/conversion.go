package extraction

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// pdfToPNG renders the first page of a PDF as PNG
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Receipts forwarded as PDF are a single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// heicToPNG decodes an iPhone HEIC/HEIF photo and re-encodes it as PNG
func heicToPNG(imageData []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMIMEType lowercases, drops parameters and sniffs when empty
func normalizeMIMEType(data []byte, contentType string) string {
	mimeType, _, _ := strings.Cut(contentType, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	return mimeType
}

// prepareMedia converts formats vision models reject (PDF, HEIC) to PNG and
// passes everything else through with its normalized MIME type
func prepareMedia(data []byte, contentType string) ([]byte, string, error) {
	mimeType := normalizeMIMEType(data, contentType)

	switch {
	case mimeType == "application/pdf":
		pngData, err := pdfToPNG(data)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, "image/png", nil
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		pngData, err := heicToPNG(data)
		if err != nil {
			return nil, "", fmt.Errorf("converting HEIC to image: %w", err)
		}
		return pngData, "image/png", nil
	}

	return data, mimeType, nil
}
