package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
)

func newArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			io.WriteString(w, `<html><body>
				<a href="../">../</a>
				<a href="mars/">mars/</a>
				<a href="moon/">moon/</a>
				<a href="behind-the-scenes/">behind-the-scenes/</a>
			</body></html>`)
		case "/mars/":
			io.WriteString(w, `<html><body>
				<a href="../">../</a>
				<a href="olympus.jpg">olympus.jpg</a>
				<a href="valles.jpg">valles.jpg</a>
			</body></html>`)
		case "/moon/":
			io.WriteString(w, `<html><body>
				<a href="../">../</a>
				<a href="tycho.png">tycho.png</a>
			</body></html>`)
		case "/mars/olympus.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(baseURL, &ClientConfig{RequestsPerSecond: 1000, Burst: 100}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return client
}

func TestClient_FetchManifest(t *testing.T) {
	server := newArchiveServer(t)
	client := newTestClient(t, server.URL)

	entries, err := client.FetchManifest(context.Background())
	if err != nil {
		t.Fatalf("FetchManifest() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (unknown directory must be skipped)", len(entries))
	}

	byTheme := make(map[domain.Theme]int)
	for _, entry := range entries {
		byTheme[entry.Theme]++
		if entry.SourceURL == "" || entry.FileName == "" {
			t.Errorf("incomplete entry: %+v", entry)
		}
	}
	if byTheme[domain.ThemeMars] != 2 || byTheme[domain.ThemeMoon] != 1 {
		t.Errorf("theme distribution = %v", byTheme)
	}
}

func TestClient_FetchManifest_RootUnreachable(t *testing.T) {
	server := newArchiveServer(t)
	client := newTestClient(t, server.URL)
	server.Close()

	_, err := client.FetchManifest(context.Background())
	if !domain.IsNetworkError(err) {
		t.Errorf("FetchManifest() error = %v, want NetworkError", err)
	}
}

func TestClient_FetchManifest_SkipsFailingTheme(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			io.WriteString(w, `<a href="mars/">mars/</a><a href="moon/">moon/</a>`)
		case "/mars/":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/moon/":
			io.WriteString(w, `<a href="tycho.png">tycho.png</a>`)
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	entries, err := client.FetchManifest(context.Background())
	if err != nil {
		t.Fatalf("FetchManifest() error = %v, want partial manifest", err)
	}
	if len(entries) != 1 || entries[0].Theme != domain.ThemeMoon {
		t.Errorf("entries = %+v, want the surviving moon entry", entries)
	}
}

func TestClient_FetchManifest_AllThemesFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			io.WriteString(w, `<a href="mars/">mars/</a>`)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchManifest(context.Background())
	if !domain.IsNetworkError(err) {
		t.Errorf("FetchManifest() error = %v, want NetworkError when every theme fails", err)
	}
}

func TestClient_Download(t *testing.T) {
	server := newArchiveServer(t)
	client := newTestClient(t, server.URL)

	body, size, err := client.Download(context.Background(), server.URL+"/mars/olympus.jpg")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("body = %q", data)
	}
	if size != int64(len("jpeg-bytes")) {
		t.Errorf("size = %d, want %d", size, len("jpeg-bytes"))
	}
}

func TestClient_Download_Gone(t *testing.T) {
	server := newArchiveServer(t)
	client := newTestClient(t, server.URL)

	_, _, err := client.Download(context.Background(), server.URL+"/mars/removed.jpg")
	if !domain.IsNetworkError(err) {
		t.Fatalf("Download() error = %v, want NetworkError", err)
	}
	if !errors.Is(err, domain.ErrSourceGone) {
		t.Errorf("Download() error = %v, want ErrSourceGone in chain", err)
	}
}

func TestClient_Download_CanceledContext(t *testing.T) {
	server := newArchiveServer(t)
	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.Download(ctx, server.URL+"/mars/olympus.jpg")
	if !domain.IsNetworkError(err) {
		t.Errorf("Download() error = %v, want NetworkError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Download() error = %v, want context.Canceled in chain", err)
	}
}
