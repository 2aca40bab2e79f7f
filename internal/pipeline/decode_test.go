package pipeline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"testing"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
	"golang.org/x/image/bmp"

	"photoresizer/internal/testutil"
)

func TestDecodeJPEG(t *testing.T) {
	data := testutil.JPEGBytes(t, testutil.GradientImage(40, 30))
	src, err := Decode(bytes.NewReader(data), 1<<20, MaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Width != 40 || src.Height != 30 {
		t.Fatalf("expected 40x30, got %dx%d", src.Width, src.Height)
	}
	if src.ContentType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", src.ContentType)
	}
}

func TestDecodePNG(t *testing.T) {
	data := testutil.PNGBytes(t, testutil.GradientImage(10, 12))
	src, err := Decode(bytes.NewReader(data), 1<<20, MaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Size() != image.Pt(10, 12) {
		t.Fatalf("expected 10x12, got %v", src.Size())
	}
}

func TestDecodeWebP(t *testing.T) {
	var b bytes.Buffer
	if err := webp.Encode(&b, testutil.GradientImage(16, 16), &webp.Options{Quality: 80}); err != nil {
		t.Fatalf("encode webp: %v", err)
	}
	src, err := Decode(&b, 1<<20, MaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.ContentType != "image/webp" {
		t.Fatalf("expected image/webp, got %s", src.ContentType)
	}
}

func TestDecodeBMP(t *testing.T) {
	var b bytes.Buffer
	if err := bmp.Encode(&b, testutil.GradientImage(9, 7)); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	src, err := Decode(&b, 1<<20, MaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Width != 9 || src.Height != 7 {
		t.Fatalf("expected 9x7, got %dx%d", src.Width, src.Height)
	}
}

func TestDecodeAVIF(t *testing.T) {
	var b bytes.Buffer
	if err := avif.Encode(&b, image.NewRGBA(image.Rect(0, 0, 16, 16)), avif.Options{Quality: 60, Speed: 8}); err != nil {
		t.Fatalf("encode avif: %v", err)
	}
	if ct := DetectFormat(b.Bytes()); ct != "image/avif" {
		t.Fatalf("expected image/avif, got %s", ct)
	}
	src, err := Decode(bytes.NewReader(b.Bytes()), 1<<20, MaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Width != 16 || src.Height != 16 {
		t.Fatalf("expected 16x16, got %dx%d", src.Width, src.Height)
	}
}

func TestDecodeRejectsText(t *testing.T) {
	_, err := Decode(bytes.NewBufferString("this is not an image"), 1024, MaxDimension)
	if !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}

func TestDecodeRejectsEmpty(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil), 1024, MaxDimension)
	if !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}

func TestDecodeRejectsTooLarge(t *testing.T) {
	data := make([]byte, 1024*10)
	for i := range data {
		data[i] = 'a'
	}
	_, err := Decode(bytes.NewReader(data), 1024, MaxDimension)
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestDecodeRejectsInvalidDimensions(t *testing.T) {
	data := testutil.PNGBytes(t, image.NewRGBA(image.Rect(0, 0, 301, 10)))
	_, err := Decode(bytes.NewReader(data), 1<<20, 300)
	if err != ErrInvalidDimensions {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestDecodeCorruptJPEG(t *testing.T) {
	data := testutil.JPEGBytes(t, testutil.GradientImage(40, 30))
	_, err := Decode(bytes.NewReader(data[:len(data)/3]), 1<<20, MaxDimension)
	if !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage for truncated jpeg, got %v", err)
	}
}

func TestDecodeTruncatedAfterHeader(t *testing.T) {
	data := testutil.JPEGBytes(t, testutil.NoiseImage(200, 200, 3))
	// the header survives so only the full decode fails
	_, err := Decode(bytes.NewReader(data[:len(data)/2]), 1<<20, MaxDimension)
	if !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}

func TestDecodeRejectsDimensionsFromHeader(t *testing.T) {
	// a PNG header declaring 100000x100000 with no pixel data behind it
	hdr := testutil.PNGBytes(t, testutil.GradientImage(1, 1))[:33]
	binary.BigEndian.PutUint32(hdr[16:20], 100000)
	binary.BigEndian.PutUint32(hdr[20:24], 100000)
	binary.BigEndian.PutUint32(hdr[29:33], crc32.ChecksumIEEE(hdr[12:29]))

	_, err := Decode(bytes.NewReader(hdr), 1<<20, MaxDimension)
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
}
