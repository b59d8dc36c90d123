package gtfs

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrIncompleteFeed is returned when a required table is missing from the feed.
var ErrIncompleteFeed = errors.New("incomplete GTFS feed")

// Load reads a GTFS feed from a zip archive or a directory of .txt files.
func Load(path string, logger *zap.Logger) (*Feed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gocsv.SetCSVReader(gtfsCSVReader)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	feed := &Feed{}
	if info.IsDir() {
		err = loadDir(feed, path, logger)
	} else {
		err = loadZip(feed, path, logger)
	}
	if err != nil {
		return nil, err
	}

	if err := feed.validate(); err != nil {
		return nil, err
	}
	logger.Info("parsed GTFS feed",
		zap.String("path", path),
		zap.Int("stops", len(feed.Stops)),
		zap.Int("trips", len(feed.Trips)),
		zap.Int("stop_times", len(feed.StopTimes)),
		zap.Int("calendars", len(feed.Calendars)),
		zap.Int("calendar_dates", len(feed.CalendarDates)),
	)
	return feed, nil
}

func loadZip(feed *Feed, path string, logger *zap.Logger) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := parseZipFile(feed, f, logger); err != nil {
			return err
		}
	}
	return nil
}

func parseZipFile(feed *Feed, zf *zip.File, logger *zap.Logger) error {
	f, err := zf.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", zf.Name, err)
	}
	defer f.Close()
	return parseFile(feed, filepath.Base(zf.Name), f, logger)
}

func loadDir(feed *Feed, path string, logger *zap.Logger) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(path, e.Name()))
		if err != nil {
			return err
		}
		err = parseFile(feed, e.Name(), f, logger)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func parseFile(feed *Feed, name string, contents io.Reader, logger *zap.Logger) error {
	var err error
	switch name {
	case "agency.txt":
		err = gocsv.Unmarshal(contents, &feed.Agencies)
	case "stops.txt":
		err = gocsv.Unmarshal(contents, &feed.Stops)
	case "trips.txt":
		err = gocsv.Unmarshal(contents, &feed.Trips)
	case "stop_times.txt":
		err = gocsv.Unmarshal(contents, &feed.StopTimes)
	case "calendar.txt":
		err = gocsv.Unmarshal(contents, &feed.Calendars)
	case "calendar_dates.txt":
		err = gocsv.Unmarshal(contents, &feed.CalendarDates)
	default:
		logger.Debug("ignoring GTFS file", zap.String("file", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (f *Feed) validate() error {
	switch {
	case len(f.Trips) == 0:
		return fmt.Errorf("%w: trips.txt is missing or empty", ErrIncompleteFeed)
	case len(f.StopTimes) == 0:
		return fmt.Errorf("%w: stop_times.txt is missing or empty", ErrIncompleteFeed)
	case len(f.Calendars) == 0 && len(f.CalendarDates) == 0:
		return fmt.Errorf("%w: neither calendar.txt nor calendar_dates.txt is present", ErrIncompleteFeed)
	}
	return nil
}

// gtfsCSVReader tolerates a leading byte order mark and rows shorter than the header.
func gtfsCSVReader(in io.Reader) gocsv.CSVReader {
	decoded := transform.NewReader(in, unicode.BOMOverride(encoding.Nop.NewDecoder()))
	csvReader := csv.NewReader(decoded)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	return csvReader
}

// Download fetches a GTFS archive to dest.
func Download(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
