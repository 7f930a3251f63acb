package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	c := NewClient("", "", "team/repo").WithBaseURL(server.URL)
	c.HTTPClient = server.Client()
	c.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestAPIReader(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		switch r.URL.Path {
		case "/repositories/team/repo/issues":
			mu.Lock()
			queries = append(queries, r.URL.Query().Get("q"))
			mu.Unlock()
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `{"size":2,"page":2,"pagelen":1,"values":[
					{"id":5,"title":"Five","state":"open","created_on":"2013-01-01T00:00:00+00:00","updated_on":"2013-01-01T00:00:00+00:00"}]}`)
				return
			}
			fmt.Fprintf(w, `{"size":2,"page":1,"pagelen":1,"next":"%s/repositories/team/repo/issues?page=2","values":[
				{"id":4,"title":"Four","content":{"raw":"text"},"state":"new","priority":"major","kind":"bug",
				 "reporter":{"nickname":"alice","display_name":"Alice"},"component":{"name":"core"},"milestone":null,
				 "created_on":"2012-01-01T00:00:00.5+00:00","updated_on":"2012-01-02T00:00:00+00:00"}]}`, base)
		case "/repositories/team/repo/issues/4/comments":
			fmt.Fprint(w, `{"values":[
				{"id":1,"content":{"raw":"hi"},"user":{"username":"bob","display_name":"Bob"},"created_on":"2012-01-01T01:00:00+00:00","updated_on":"2012-01-01T01:00:00+00:00"},
				{"id":2,"content":{"raw":""},"created_on":"2012-01-01T02:00:00+00:00","updated_on":"2012-01-01T02:00:00+00:00"}]}`)
		case "/repositories/team/repo/issues/4/changes":
			fmt.Fprint(w, `{"values":[{"user":{"username":"bob"},"created_on":"2012-01-01T03:00:00+00:00",
				"changes":{"state":{"old":"new","new":"resolved"},"milestone":{"old":null,"new":"M1"}}}]}`)
		case "/repositories/team/repo/issues/4/attachments":
			fmt.Fprintf(w, `{"values":[
				{"name":"a.txt","links":{"self":{"href":"%s/files/a.txt"}}},
				{"name":"b.txt","links":{"self":{"href":"%s/files/b.txt"}}}]}`, base, base)
		case "/files/a.txt":
			fmt.Fprint(w, "AAA")
		case "/files/b.txt":
			w.WriteHeader(http.StatusForbidden)
		case "/repositories/team/repo/issues/5/comments", "/repositories/team/repo/issues/5/attachments":
			fmt.Fprint(w, `{"values":[]}`)
		case "/repositories/team/repo/issues/5/changes":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var warnings []string
	var wmu sync.Mutex
	reader := NewAPIReader(newTestClient(server), Options{
		AttachmentData: true,
		OnWarning: func(m string) {
			wmu.Lock()
			warnings = append(warnings, m)
			wmu.Unlock()
		},
	})
	reader.SkipTo(3)

	issues := readAll(t, reader.Next)
	require.Len(t, issues, 2)
	require.NotEmpty(t, queries)
	assert.Equal(t, "id > 3", queries[0], "first page filters by offset")

	four := issues[0]
	assert.Equal(t, "text", four.Content)
	assert.Equal(t, "alice", four.Reporter.Username)
	assert.Equal(t, "core", four.Component)
	assert.Empty(t, four.Milestone)
	require.Len(t, four.Comments, 1)
	assert.Equal(t, "Bob", four.Comments[0].User.DisplayName)
	require.Len(t, four.Changes, 1)
	assert.Equal(t, "", four.Changes[0].Changes["milestone"].Old)
	assert.Equal(t, "resolved", four.Changes[0].Changes["state"].New)
	require.Len(t, four.Attachments, 2)
	assert.Equal(t, "AAA", string(four.Attachments[0].Data))
	assert.Equal(t, http.StatusForbidden, StatusCode(four.Attachments[1].Err))

	five := issues[1]
	assert.Empty(t, five.Changes, "500 on changes degrades to none")

	require.Len(t, warnings, 2)
	joined := strings.Join(warnings, "\n")
	assert.Contains(t, joined, `"b.txt"`)
	assert.Contains(t, joined, "change log unavailable")
}

func TestAPIReaderFatalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repositories/team/repo/issues" {
			fmt.Fprint(w, `{"values":[{"id":1,"title":"x","created_on":"2012-01-01T00:00:00+00:00"}]}`)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/comments") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"values":[]}`)
	}))
	defer server.Close()

	_, err := NewAPIReader(newTestClient(server), Options{}).Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"values":[]}`)
	}))
	defer server.Close()

	comments, err := newTestClient(server).Comments(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCheckAccess(t *testing.T) {
	tests := []struct {
		status  int
		user    string
		wantErr string
	}{
		{status: http.StatusOK},
		{status: http.StatusNotFound, wantErr: "case-sensitive"},
		{status: http.StatusForbidden, wantErr: "is private"},
		{status: http.StatusForbidden, user: "carol", wantErr: `user "carol" has no access`},
		{status: http.StatusUnauthorized, user: "carol", wantErr: "failed to log in"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%s", tt.status, tt.user), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				user, _, ok := r.BasicAuth()
				if tt.user != "" && (!ok || user != tt.user) {
					t.Errorf("basic auth user = %q, want %q", user, tt.user)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()
			c := newTestClient(server)
			c.Username = tt.user

			err := c.CheckAccess(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLookupUserCaches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/users/alice" {
			fmt.Fprint(w, `{"username":"alice","display_name":"Alice Liddell"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()
	c := newTestClient(server)
	ctx := context.Background()

	u, err := c.LookupUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", u.DisplayName)
	_, err = c.LookupUser(ctx, "alice")
	require.NoError(t, err)

	u, err = c.LookupUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", u.DisplayName)

	assert.EqualValues(t, 2, calls.Load())
}
