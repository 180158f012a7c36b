package localfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cardpress/internal/ports"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	fs := New(t.TempDir())

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "jobs/j1/card_1.png",
		ContentType: "image/png",
		Reader:      strings.NewReader("pngdata"),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if out.ObjectKey != "jobs/j1/card_1.png" || out.Size != 7 {
		t.Errorf("unexpected put output: %+v", out)
	}

	rc, ct, size, err := fs.GetObject(ctx, out.ObjectKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "pngdata" {
		t.Errorf("expected body %q, got %q", "pngdata", body)
	}
	if ct != "image/png" {
		t.Errorf("expected content type image/png, got %q", ct)
	}
	if size != 7 {
		t.Errorf("expected size 7, got %d", size)
	}

	if err := fs.DeleteObject(ctx, out.ObjectKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, _, err := fs.GetObject(ctx, out.ObjectKey); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if err := fs.DeleteObject(ctx, out.ObjectKey); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound on second delete, got %v", err)
	}
}

func TestSniffsContentTypeWithoutExtension(t *testing.T) {
	ctx := context.Background()
	fs := New(t.TempDir())
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
	if _, err := fs.PutObject(ctx, ports.PutObjectInput{ObjectKey: "blob", Reader: strings.NewReader(png)}); err != nil {
		t.Fatal(err)
	}
	rc, ct, _, err := fs.GetObject(ctx, "blob")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if ct != "image/png" {
		t.Errorf("expected sniffed image/png, got %q", ct)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != png {
		t.Errorf("sniffing must not consume the body")
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	fs := New(t.TempDir())
	for _, key := range []string{"", "../outside.png", "a/../../outside.png", "/etc/passwd"} {
		_, err := fs.PutObject(context.Background(), ports.PutObjectInput{ObjectKey: key, Reader: strings.NewReader("x")})
		if err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}
