package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"
)

// Poller fetches a GTFS-RT trip update feed over HTTP and applies it.
type Poller struct {
	ingestor *Ingestor
	url      string
	client   *http.Client
	logger   *zap.Logger
}

// NewPoller creates a poller for url
func NewPoller(ingestor *Ingestor, url string, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		ingestor: ingestor,
		url:      url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Poll fetches the feed once and applies it.
func (p *Poller) Poll(ctx context.Context) (FeedResult, error) {
	feed, err := p.fetchFeed(ctx)
	if err != nil {
		return FeedResult{}, fmt.Errorf("failed to fetch trip updates: %w", err)
	}
	return p.ingestor.ApplyFeed(ctx, feed, p.url)
}

func (p *Poller) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return Decode(body)
}

// LoadPath applies a .pb feed file, or every .pb file of a directory in name order.
func (i *Ingestor) LoadPath(ctx context.Context, path string) (FeedResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FeedResult{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return FeedResult{}, fmt.Errorf("failed to read directory %s: %w", path, err)
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".pb") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	var total FeedResult
	for _, file := range files {
		body, err := os.ReadFile(file)
		if err != nil {
			return total, fmt.Errorf("failed to read %s: %w", file, err)
		}
		feed, err := Decode(body)
		if err != nil {
			return total, fmt.Errorf("%s: %w", file, err)
		}
		result, err := i.ApplyFeed(ctx, feed, file)
		if err != nil {
			return total, err
		}
		total.SnapshotID = result.SnapshotID
		total.TripUpdates += result.TripUpdates
		total.VehiclePositions += result.VehiclePositions
		total.Rejected += result.Rejected
		total.StopsSkipped += result.StopsSkipped
	}
	return total, nil
}
