package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"market_engine/internal/domain"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// IconSize is the edge length icons are resized to.
const IconSize = 24

// IconDownloader handles downloading and caching instrument icons
type IconDownloader struct {
	basePath string
	client   *http.Client
	logger   *slog.Logger
}

// NewIconDownloader creates a downloader storing icons under dir, or under
// the user config dir when dir is empty.
func NewIconDownloader(dir string, logger *slog.Logger) (*IconDownloader, error) {
	path := dir
	if path == "" {
		p, err := getAssetsPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve assets path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconDownloader{
		basePath: path,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		logger: logger.With("module", "icons"),
	}, nil
}

// DownloadIcon fetches imageURL for symbol unless it is already cached.
// Returns the local file path on success. Images are resized to 24x24.
func (d *IconDownloader) DownloadIcon(ctx context.Context, symbol, imageURL string) (string, error) {
	// Security: Sanitize symbol to prevent path traversal
	safeSymbol := sanitizeSymbol(symbol)
	if safeSymbol == "" {
		return "", fmt.Errorf("invalid symbol: %s", symbol)
	}

	filePath := d.GetIconPath(safeSymbol)
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil // Cache Hit
	}

	if imageURL == "" {
		imageURL = fmt.Sprintf("https://assets.coincap.io/assets/icons/%s@2x.png", strings.ToLower(safeSymbol))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	resizedImg := imaging.Resize(srcImg, IconSize, IconSize, imaging.Lanczos)

	if err := imaging.Save(resizedImg, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return filePath, nil
}

// Sync downloads icons for every instrument with bounded concurrency and
// returns the local paths by instrument ID. Individual failures are logged.
func (d *IconDownloader) Sync(ctx context.Context, instruments []domain.Instrument, concurrency int) map[string]string {
	if concurrency < 1 {
		concurrency = 1
	}
	var (
		mu    sync.Mutex
		paths = make(map[string]string, len(instruments))
		g     errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, in := range instruments {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p, err := d.DownloadIcon(ctx, in.Symbol, in.ImageURL)
			if err != nil {
				d.logger.Debug("Icon download failed", slog.String("symbol", in.Symbol), slog.Any("error", err))
				return nil
			}
			mu.Lock()
			paths[in.ID] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return paths
}

// GetIconPath returns the local path for a symbol's icon
func (d *IconDownloader) GetIconPath(symbol string) string {
	return filepath.Join(d.basePath, strings.ToLower(symbol)+".png")
}

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	appDirName = "MarketEngine"
)

func getAssetsPath() (string, error) {
	configDir, err := userDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appDirName, "assets", "icons"), nil
}

func userDataDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
	}
	return os.UserConfigDir()
}

// UserDataDir returns the per-user application directory.
func UserDataDir() (string, error) {
	dir, err := userDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

func sanitizeSymbol(symbol string) string {
	res := make([]rune, 0, len(symbol))
	for _, r := range symbol {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			res = append(res, r)
		}
	}
	return string(res)
}
