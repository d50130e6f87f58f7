package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"replay/crumbs/internal/domain"
	"replay/crumbs/internal/summarizer"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	trails   map[string][]domain.Breadcrumb
	clicks   map[string]int64
	enqueued []string
	err      error
}

func (f *fakeService) Segments(ctx context.Context, replayID string, clickable bool) ([]summarizer.Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	crumbs, ok := f.trails[replayID]
	if !ok {
		return nil, domain.ErrReplayNotFound
	}
	var onClick summarizer.ClickHandler
	if clickable {
		onClick = func(c domain.Breadcrumb) { f.clicks[c.ID]++ }
	}
	return summarizer.Summarize(crumbs, onClick, 1_000), nil
}

func (f *fakeService) Click(ctx context.Context, replayID, crumbID string) error {
	segments, err := f.Segments(ctx, replayID, true)
	if err != nil {
		return err
	}
	click, ok := summarizer.FindClickable(segments, crumbID)
	if !ok {
		return domain.ErrCrumbNotFound
	}
	click()
	return nil
}

func (f *fakeService) Clicks(ctx context.Context, replayID string) (map[string]int64, error) {
	return f.clicks, nil
}

func (f *fakeService) Enqueue(ctx context.Context, replayIDs ...string) error {
	f.enqueued = append(f.enqueued, replayIDs...)
	return f.err
}

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *fakeService) {
	t.Helper()

	crumbs := make([]domain.Breadcrumb, 5)
	for i := range crumbs {
		crumbs[i] = domain.Breadcrumb{ID: fmt.Sprintf("c%d", i), Data: domain.BreadcrumbData{To: fmt.Sprintf("/p/%d?x=1", i)}}
	}

	svc := &fakeService{trails: map[string][]domain.Breadcrumb{"r1": crumbs}, clicks: map[string]int64{}}

	logger := log.New()
	logger.SetOutput(io.Discard)

	srv := httptest.NewServer(NewServer(svc, logger, apiKey))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "key")

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, "key")

	resp := do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments", "", map[string]string{"Authorization": "Bearer key"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSummarizeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	body := `{"breadcrumbs":[
		{"id":"a","data":{"to":"/a?x=1"}},
		{"id":"b","data":{"to":"/b"}},
		{"id":"b2","data":{"to":"/b"}},
		{"id":"b3","data":{"to":"/b"}},
		{"id":"c","data":{"to":"/c"}}
	],"anchor_timestamp_ms":0,"clickable":true}`

	resp := do(t, http.MethodPost, srv.URL+"/api/segments", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Segments []map[string]any `json:"segments"`
		Lines    []string         `json:"lines"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	require.Len(t, decoded.Segments, 3)
	assert.Equal(t, "/a", decoded.Segments[0]["path"])
	assert.Equal(t, true, decoded.Segments[0]["clickable"])
	assert.Equal(t, "3 Pages", decoded.Segments[1]["label"])
	assert.Equal(t, "/c", decoded.Segments[2]["path"])
	assert.Equal(t, []string{"/a", "3 Pages", "  /b", "  /b", "  /b", "/c"}, decoded.Lines)
}

func TestSummarizeEndpoint_Empty(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/api/segments", `{"breadcrumbs":[]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"segments":[{"type":"empty","count":0,"label":"0 Pages"}],"lines":["0 Pages"]}`, string(raw))
}

func TestSummarizeEndpoint_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/api/segments", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReplaySegments_Formats(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments?format=text", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "/p/0\n3 Pages\n  /p/1\n  /p/2\n  /p/3\n/p/4\n", string(raw))

	resp = do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments?format=html&clickable=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	href, ok := doc.Find("li.crumb-row a").First().Attr("href")
	require.True(t, ok)
	assert.Equal(t, "/api/replays/r1/breadcrumbs/c1/click", href)

	resp = do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments?format=xml", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/replays/missing/segments", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClickEndpoints(t *testing.T) {
	srv, svc := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/api/replays/r1/breadcrumbs/c2/click", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(1), svc.clicks["c2"])

	resp = do(t, http.MethodPost, srv.URL+"/api/replays/r1/breadcrumbs/zzz/click", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/replays/r1/clicks", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"replay_id":"r1","clicks":{"c2":1}}`, string(raw))
}

func TestSyncEndpoint(t *testing.T) {
	srv, svc := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/api/replays/r9/sync", "", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"r9"}, svc.enqueued)

	svc.err = errors.New("redis down")
	resp = do(t, http.MethodPost, srv.URL+"/api/replays/r9/sync", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHTMLTrailLinksRecordClicks(t *testing.T) {
	srv, svc := newTestServer(t, "key")
	auth := map[string]string{"Authorization": "Bearer key"}

	resp := do(t, http.MethodGet, srv.URL+"/api/replays/r1/segments?format=html&clickable=true", "", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	hrefs := doc.Find("a").Map(func(_ int, s *goquery.Selection) string {
		href, _ := s.Attr("href")
		return href
	})
	require.Len(t, hrefs, 5)

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	for _, href := range hrefs {
		req, err := http.NewRequest(http.MethodGet, srv.URL+href, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer key")

		resp, err := noRedirect.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, href)
		assert.Equal(t, "/api/replays/r1/segments?format=html&clickable=true", resp.Header.Get("Location"))
	}

	assert.Equal(t, map[string]int64{"c0": 1, "c1": 1, "c2": 1, "c3": 1, "c4": 1}, svc.clicks)

	resp = do(t, http.MethodGet, srv.URL+hrefs[0], "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(1), svc.clicks["c0"])
}

func TestRequestLoggerRecordsStatusAndBytes(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, 5, entry.Data["bytes"])
	assert.Equal(t, "/x", entry.Data["path"])

	hook.Reset()
	handler = RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/y", nil))
	assert.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])
}
