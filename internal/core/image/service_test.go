package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestInspect_PNG(t *testing.T) {
	svc := NewService(1<<20, 0)

	info, err := svc.Inspect(encodePNG(t, 64, 48))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Dimensions != (Dimensions{Width: 64, Height: 48}) {
		t.Errorf("Expected 64x48, got %s", info.Dimensions)
	}
	if info.MediaType != "image/png" || info.Format != "png" {
		t.Errorf("Unexpected type %s / %s", info.MediaType, info.Format)
	}
}

func TestInspect_JPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}

	info, err := NewService(0, 0).Inspect(buf.Bytes())
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Dimensions.String() != "30x20" {
		t.Errorf("Expected 30x20, got %s", info.Dimensions)
	}
}

func TestInspect_Rejects(t *testing.T) {
	svc := NewService(100, 0)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"too large", bytes.Repeat([]byte{1}, 101), ErrTooLarge},
		{"text", []byte("hello world"), ErrNotImage},
		// PNG 簽名但內容損壞
		{"corrupt png", append([]byte("\x89PNG\r\n\x1a\n"), []byte("garbage")...), ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Inspect(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

// pngHeader 只有簽名與 IHDR 的 PNG，尺寸由呼叫端指定
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 17)
	copy(ihdr, "IHDR")
	binary.BigEndian.PutUint32(ihdr[4:], w)
	binary.BigEndian.PutUint32(ihdr[8:], h)
	ihdr[12] = 8 // bit depth
	ihdr[13] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(ihdr)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr))
	return buf.Bytes()
}

// withOrientation 在 JPEG 的 SOI 之後插入只含方向標籤的 EXIF 區段
func withOrientation(jpg []byte, orientation uint16) []byte {
	var app1 bytes.Buffer
	app1.Write([]byte{0xff, 0xe1, 0x00, 0x22})
	app1.WriteString("Exif\x00\x00")
	app1.Write([]byte{'M', 'M', 0x00, 0x2a, 0x00, 0x00, 0x00, 0x08})
	app1.Write([]byte{0x00, 0x01})
	app1.Write([]byte{0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01})
	binary.Write(&app1, binary.BigEndian, orientation)
	app1.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	out := append([]byte{}, jpg[:2]...)
	out = append(out, app1.Bytes()...)
	return append(out, jpg[2:]...)
}

func TestInspect_RejectsTruncatedBitmap(t *testing.T) {
	data := encodePNG(t, 64, 64)
	truncated := data[:len(data)-20]

	// 標頭仍可讀取
	if _, _, err := DecodeDimensions(truncated); err != nil {
		t.Fatalf("Expected header to decode, got %v", err)
	}

	_, err := NewService(0, 0).Inspect(truncated)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected %v, got %v", ErrUnsupported, err)
	}
}

func TestInspect_PixelBudget(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		maxPixels int64
	}{
		{"header claims huge bitmap", pngHeader(100000, 100000), 64 << 20},
		{"real bitmap over budget", encodePNG(t, 64, 48), 64*48 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(0, tt.maxPixels).Inspect(tt.data)
			if !errors.Is(err, ErrTooLarge) {
				t.Errorf("Expected %v, got %v", ErrTooLarge, err)
			}
		})
	}

	if _, err := NewService(0, 64*48).Inspect(encodePNG(t, 64, 48)); err != nil {
		t.Errorf("Bitmap at the budget should pass: %v", err)
	}
}

func TestInspect_AppliesExifOrientation(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 30, 20)), nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}

	// 6 = 順時針旋轉 90 度
	info, err := NewService(0, 0).Inspect(withOrientation(buf.Bytes(), 6))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Dimensions != (Dimensions{Width: 20, Height: 30}) {
		t.Errorf("Expected 20x30 after rotation, got %s", info.Dimensions)
	}
}
