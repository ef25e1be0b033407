// Package imageprep turns fetched receipt bytes into something the text
// recognizer accepts. HEIC photos are re-encoded as JPEG and PDFs with a
// text layer bypass OCR entirely.
package imageprep

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strings"

	"github.com/gen2brain/heic"
	"github.com/ledongthuc/pdf"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

const (
	mimeJPEG = "image/jpeg"
	mimePDF  = "application/pdf"

	jpegQuality = 90
)

type Preparer struct{}

func New() *Preparer {
	return &Preparer{}
}

func (p *Preparer) Prepare(ctx context.Context, data []byte) (domain.PreparedReceipt, error) {
	if len(data) == 0 {
		return domain.PreparedReceipt{}, domain.WrapError(domain.ErrInvalidInput, "prepare receipt", fmt.Errorf("receipt object is empty"))
	}
	if err := ctx.Err(); err != nil {
		return domain.PreparedReceipt{}, err
	}

	switch {
	case isPDF(data):
		text, err := pdfText(data)
		if err != nil {
			return domain.PreparedReceipt{}, err
		}
		return domain.PreparedReceipt{Image: data, MIMEType: mimePDF, EmbeddedText: text}, nil
	case isHEIC(data):
		converted, err := heicToJPEG(data)
		if err != nil {
			return domain.PreparedReceipt{}, err
		}
		return domain.PreparedReceipt{Image: converted, MIMEType: mimeJPEG}, nil
	default:
		return domain.PreparedReceipt{Image: data, MIMEType: http.DetectContentType(data)}, nil
	}
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEIC looks for an ftyp box with one of the HEIF brands.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "hevc", "mif1", "msf1":
		return true
	default:
		return false
	}
}

func heicToJPEG(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode heic receipt", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfText returns the text layer of a PDF receipt. Scanned PDFs without one
// are rejected because there is no rasterizer to feed OCR.
func pdfText(data []byte) (text string, err error) {
	// The reader panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "read pdf receipt", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "read pdf receipt", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text = strings.TrimSpace(string(raw))
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("pdf has no text layer"))
	}
	return text, nil
}
