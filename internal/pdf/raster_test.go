package pdf

import (
	"errors"
	"testing"
)

func TestPageCount_MalformedBytes(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("not a pdf at all"),
		[]byte("%PDF-1.4 truncated"),
	}
	for _, data := range cases {
		if _, err := PageCount(data); !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("PageCount(%d bytes) = %v, want ErrMalformedDocument", len(data), err)
		}
	}
}

func TestRendererOpen_MalformedBytes(t *testing.T) {
	r := &Renderer{DPI: 150, JPEGQuality: 80}
	if _, err := r.Open([]byte("garbage")); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("Open(garbage) = %v, want ErrMalformedDocument", err)
	}
}
