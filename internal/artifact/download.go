package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/failure"
	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/session"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

// Fetcher retrieves a previously returned result.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Feedback is what the downloader reports to.
type Feedback interface {
	Signal(feedback.Tag)
	Notify(message string)
	Saved(location string, size int64)
}

// Downloader saves result artifacts. Failures are reported immediately and
// never retried.
type Downloader struct {
	fetcher  Fetcher
	sink     Sink
	feedback Feedback
}

func NewDownloader(fetcher Fetcher, sink Sink, fb Feedback) *Downloader {
	return &Downloader{fetcher: fetcher, sink: sink, feedback: fb}
}

// Download fetches rawURL and saves it under the URL's final path segment.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	name, err := nameFromURL(rawURL)
	if err != nil {
		return "", d.fail(rawURL, err)
	}
	data, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", d.fail(rawURL, err)
	}
	location, err := d.sink.Save(ctx, name, data)
	if err != nil {
		return "", d.fail(rawURL, err)
	}
	d.feedback.Saved(location, int64(len(data)))
	return location, nil
}

// Bundle fetches every URL and saves them as one zstd-compressed zip named
// bundleName. Entries are named by each URL's final path segment.
func (d *Downloader) Bundle(ctx context.Context, urls []string, bundleName string) (string, error) {
	if len(urls) == 0 {
		return "", d.fail(bundleName, fmt.Errorf("no results to download"))
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	})

	now := time.Now()
	var total int64
	for _, u := range urls {
		name, err := nameFromURL(u)
		if err != nil {
			return "", d.fail(u, err)
		}
		data, err := d.fetcher.Fetch(ctx, u)
		if err != nil {
			return "", d.fail(u, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zipMethodZstd,
			Modified: now,
		})
		if err != nil {
			return "", d.fail(u, fmt.Errorf("create zip entry: %w", err))
		}
		if _, err := w.Write(data); err != nil {
			return "", d.fail(u, fmt.Errorf("write zip entry: %w", err))
		}
		total += int64(len(data))
	}
	if err := zw.Close(); err != nil {
		return "", d.fail(bundleName, fmt.Errorf("finish zip: %w", err))
	}

	location, err := d.sink.Save(ctx, bundleName, buf.Bytes())
	if err != nil {
		return "", d.fail(bundleName, err)
	}

	log.Info().
		Int("entries", len(urls)).
		Int64("uncompressed_bytes", total).
		Int("zip_bytes", buf.Len()).
		Str("location", location).
		Msg("Result bundle saved")
	d.feedback.Saved(location, int64(buf.Len()))
	return location, nil
}

func (d *Downloader) fail(target string, err error) error {
	fe := failure.Download(target, err)
	log.Error().Err(fe).Msg("Download failed")
	d.feedback.Notify(fe.Message)
	d.feedback.Signal(feedback.Error)
	return fe
}

func nameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := session.FilenameFromURL(u.Path)
	if err := checkName(name); err != nil {
		return "", err
	}
	return name, nil
}
