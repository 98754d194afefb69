package infra

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"market_engine/internal/domain"

	"github.com/disintegration/imaging"
)

func pngServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIconDownloader_ResizesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := pngServer(t, &hits)

	d, err := NewIconDownloader(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewIconDownloader: %v", err)
	}

	path, err := d.DownloadIcon(context.Background(), "BTC", srv.URL+"/btc.png")
	if err != nil {
		t.Fatalf("DownloadIcon: %v", err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open saved icon: %v", err)
	}
	if b := img.Bounds(); b.Dx() != IconSize || b.Dy() != IconSize {
		t.Errorf("icon size = %dx%d, want %dx%d", b.Dx(), b.Dy(), IconSize, IconSize)
	}

	if _, err := d.DownloadIcon(context.Background(), "BTC", srv.URL+"/btc.png"); err != nil {
		t.Fatalf("second DownloadIcon: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (cache hit expected)", hits.Load())
	}
}

func TestIconDownloader_RejectsTraversal(t *testing.T) {
	d, err := NewIconDownloader(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewIconDownloader: %v", err)
	}
	if _, err := d.DownloadIcon(context.Background(), "../..", "http://127.0.0.1:1/x.png"); err == nil {
		t.Error("expected error for symbol without safe characters")
	}
	if got := sanitizeSymbol("../etc/passwd"); got != "etcpasswd" {
		t.Errorf("sanitizeSymbol = %q", got)
	}
}

func TestIconDownloader_Sync(t *testing.T) {
	var hits atomic.Int32
	srv := pngServer(t, &hits)

	d, err := NewIconDownloader(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewIconDownloader: %v", err)
	}

	paths := d.Sync(context.Background(), []domain.Instrument{
		{ID: "bitcoin", Symbol: "BTC", ImageURL: srv.URL + "/btc.png"},
		{ID: "ethereum", Symbol: "ETH", ImageURL: srv.URL + "/eth.png"},
		{ID: "broken", Symbol: "BRK", ImageURL: srv.URL + "/missing.png"},
	}, 2)

	if len(paths) != 2 {
		t.Fatalf("paths = %v, want 2 entries", paths)
	}
	for _, id := range []string{"bitcoin", "ethereum"} {
		if _, err := os.Stat(paths[id]); err != nil {
			t.Errorf("%s icon missing: %v", id, err)
		}
	}
}
