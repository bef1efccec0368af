package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestHTTPFetcherSendsProfileHeaders(t *testing.T) {
	var gotUA, gotAccept, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>ok</body></html>")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 2 * time.Second, MaxRedirects: 3})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Mozilla/5.0 (compatible; WebScraper/1.0)", gotUA)
	assert.Equal(t, "text/html,application/xhtml+xml", gotAccept)
	assert.Contains(t, gotEncoding, "br")
	assert.Contains(t, string(page.Body), "ok")
	assert.Equal(t, srv.URL, page.URL.String())
}

func TestHTTPFetcherDecodesCompressedBodies(t *testing.T) {
	const body = "<html><body>compressed</body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write([]byte(body))
			_ = zw.Close()
			w.Header().Set("Content-Encoding", "gzip")
		case "/br":
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write([]byte(body))
			_ = bw.Close()
			w.Header().Set("Content-Encoding", "br")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 2 * time.Second})
	for _, path := range []string{"/gzip", "/br"} {
		t.Run(path, func(t *testing.T) {
			page, err := f.Fetch(context.Background(), srv.URL+path)
			require.NoError(t, err)
			assert.Equal(t, body, string(page.Body))
		})
	}
}

func TestHTTPFetcherConvertsCharset(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("<p>Café</p>")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte(latin1))
	}))
	defer srv.Close()

	page, err := NewHTTPFetcher(HTTPOptions{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>Café</p>", string(page.Body))
}

func TestHTTPFetcherFailures(t *testing.T) {
	hops := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/loop":
			hops++
			http.Redirect(w, r, "/loop", http.StatusFound)
		case "/slow":
			time.Sleep(300 * time.Millisecond)
			fmt.Fprint(w, "late")
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 100 * time.Millisecond, MaxRedirects: 3})

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.True(t, errors.Is(err, common.ErrFetchFailed))

	_, err = f.Fetch(context.Background(), srv.URL+"/loop")
	assert.True(t, errors.Is(err, common.ErrFetchFailed))
	assert.Equal(t, 4, hops)

	_, err = f.Fetch(context.Background(), srv.URL+"/slow")
	assert.True(t, errors.Is(err, common.ErrFetchFailed))

	_, err = f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.True(t, errors.Is(err, common.ErrFetchFailed))
}

func TestNewRejectsUnknownMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Crawl.FetchMode = "carrier-pigeon"

	_, err := New(cfg)
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))

	cfg.Crawl.FetchMode = "http"
	f, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)
}
