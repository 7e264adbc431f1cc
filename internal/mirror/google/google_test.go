package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"accounting/internal/log"
)

// fakeSheets records the calls the client makes against the Sheets REST API.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	calls   []string
	updated map[string][][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "":
		f.calls = append(f.calls, "get")
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})

	case r.Method == http.MethodPost && path == ":batchUpdate":
		f.calls = append(f.calls, "add")
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		_, _ = w.Write([]byte(`{}`))

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		_, _ = w.Write([]byte(`{}`))

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/values/"):
		f.calls = append(f.calls, "update")
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&vr)
		if f.updated == nil {
			f.updated = make(map[string][][]any)
		}
		f.updated[strings.TrimPrefix(path, "/values/")] = vr.Values
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, `{"error":{"message":"bad input option"}}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{}`))

	default:
		http.Error(w, `{"error":{"message":"unexpected"}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := newClient(context.Background(), "sheet-id", log.Discard(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestReplaceRowsCreatesMissingTab(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	rows := [][]any{{"時間", "類型", "金額", "備註"}, {"2024-01-01 00:00:00", "收入", 100.0, "pay"}}
	require.NoError(t, c.ReplaceRows(ctx, "ann@example.com", rows))

	assert.Equal(t, []string{"get", "add", "clear", "update"}, fake.calls)
	assert.Contains(t, fake.titles, "ann@example.com")
	require.Len(t, fake.updated["'ann@example.com'!A1"], 2)

	// The tab is remembered; the second write skips the lookup.
	require.NoError(t, c.ReplaceRows(ctx, "ann@example.com", rows))
	assert.Equal(t, []string{"get", "add", "clear", "update", "clear", "update"}, fake.calls)
}

func TestReplaceRowsExistingTab(t *testing.T) {
	fake := &fakeSheets{titles: []string{"bob@example.com"}}
	c := newTestClient(t, fake)

	require.NoError(t, c.ReplaceRows(context.Background(), "bob@example.com", [][]any{{"x"}}))
	assert.Equal(t, []string{"get", "clear", "update"}, fake.calls)
}

func TestReplaceRowsEmptyOnlyClears(t *testing.T) {
	fake := &fakeSheets{titles: []string{"t"}}
	c := newTestClient(t, fake)

	require.NoError(t, c.ReplaceRows(context.Background(), "t", nil))
	assert.Equal(t, []string{"get", "clear"}, fake.calls)
}

func TestReplaceRowsNilService(t *testing.T) {
	c := &Client{spreadsheetID: "x"}
	err := c.ReplaceRows(context.Background(), "t", nil)
	require.Error(t, err)
}

func TestNewMissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, log.Discard())
	require.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	got, err := loadCredentials(Config{CredentialsJSON: ` {"type":"service_account"} `})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, string(got))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"from":"file"}`), 0o600))
	got, err = loadCredentials(Config{CredentialsFile: path})
	require.NoError(t, err)
	assert.Equal(t, `{"from":"file"}`, string(got))

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	got, err = loadCredentials(Config{})
	require.NoError(t, err)
	assert.Equal(t, `{"from":"file"}`, string(got))

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err = loadCredentials(Config{})
	require.Error(t, err)

	_, err = loadCredentials(Config{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")})
	require.ErrorContains(t, err, "read service account file")
}

func TestQuoteTab(t *testing.T) {
	assert.Equal(t, "'a@b.com'", quoteTab("a@b.com"))
	assert.Equal(t, "'o''brien'", quoteTab("o'brien"))
}
