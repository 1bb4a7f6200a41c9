package doctext

import (
	"context"
	"errors"
	"testing"
)

func TestExtractText_PlainText(t *testing.T) {
	e := NewExtractor()

	got, err := e.ExtractText(context.Background(), "statement.txt", []byte("\xef\xbb\xbf2024-03-01 Coffee -4.50\n"))
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if got != "2024-03-01 Coffee -4.50\n" {
		t.Errorf("ExtractText() = %q", got)
	}
}

func TestExtractText_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"invalid utf8", "scan.jpg", []byte{0xff, 0xd8, 0xff, 0xe0}},
		{"binary with nul", "archive.bin", []byte("abc\x00def")},
	}

	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ExtractText(context.Background(), tt.file, tt.data)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("ExtractText() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestExtractText_CorruptPDF(t *testing.T) {
	e := NewExtractor()

	_, err := e.ExtractText(context.Background(), "statement.pdf", []byte("%PDF-1.4 this is not really a pdf"))
	if err == nil {
		t.Fatal("expected error for corrupt PDF")
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		file string
		data string
		want bool
	}{
		{"a.pdf", "", true},
		{"A.PDF", "", true},
		{"upload", "%PDF-1.7\n", true},
		{"a.txt", "hello", false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.file, []byte(tt.data)); got != tt.want {
			t.Errorf("isPDF(%q) = %v, want %v", tt.file, got, tt.want)
		}
	}
}
