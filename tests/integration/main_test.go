package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tongbuying/internal/member"
	"tongbuying/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	dataFile string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dataFile := filepath.Join(t.TempDir(), "data", "members.json")
	backend := storage.NewFileBackend(dataFile)

	svc, err := member.NewService(context.Background(), backend, true)
	require.NoError(t, err)

	router := chi.NewRouter()
	member.NewHandler(svc).Routes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, dataFile: dataFile}
}

func (ts *testServer) post(t *testing.T, path string, body any) envelope {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func (ts *testServer) get(t *testing.T, path string) envelope {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func (ts *testServer) delete(t *testing.T, path string) envelope {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestMemberLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Empty store: add a first member, expect id 1.
	env := ts.post(t, "/api/member", map[string]any{
		"nickname":         "Li",
		"phones":           []string{"13800000001"},
		"membershipExpiry": "2025-12-31",
		"membershipFee":    100,
	})
	require.True(t, env.Success, env.Message)

	var created member.Member
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, 1, created.ID)

	// Second member with no id gets id 2.
	env = ts.post(t, "/api/member", map[string]any{
		"nickname": "Wang",
		"phones":   []string{"13900000002"},
	})
	require.True(t, env.Success)
	var second member.Member
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, 2, second.ID)

	// Lookup by phone finds the first member.
	env = ts.get(t, "/api/member/13800000001")
	require.True(t, env.Success)
	var found member.Member
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, "Li", found.Nickname)
	assert.Equal(t, created.CreatedAt, found.CreatedAt)
	assert.Equal(t, created.UpdatedAt, found.UpdatedAt)

	// Mark a benefit used.
	env = ts.post(t, "/api/member/2/benefits", map[string]any{
		"benefits": []map[string]any{{"text": "free drink", "used": true}},
	})
	require.True(t, env.Success)

	// Delete member 1; only member 2 remains.
	env = ts.delete(t, "/api/member/1")
	require.True(t, env.Success)

	env = ts.get(t, "/api/members")
	require.True(t, env.Success)
	var members []member.Member
	require.NoError(t, json.Unmarshal(env.Data, &members))
	require.Len(t, members, 1)
	assert.Equal(t, 2, members[0].ID)
	assert.Equal(t, "Wang", members[0].Nickname)
	require.Len(t, members[0].Benefits, 1)
	assert.True(t, members[0].Benefits[0].Used)

	// The deleted member's phone no longer resolves.
	env = ts.get(t, "/api/member/13800000001")
	assert.False(t, env.Success)

	// The collection survives a reload from disk identically.
	reloaded, _, err := storage.NewFileBackend(ts.dataFile).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, members, reloaded)
}

func TestMethodNotAllowedStatus(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/member", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.False(t, env.Success)
	assert.Equal(t, "method not allowed", env.Message)
}

func TestConcurrentCreatesAssignUniqueIDs(t *testing.T) {
	ts := newTestServer(t)

	const writers = 10
	results := make(chan int, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			data, _ := json.Marshal(map[string]any{
				"nickname": fmt.Sprintf("member-%d", i),
				"phones":   []string{fmt.Sprintf("138%08d", i)},
			})
			resp, err := http.Post(ts.URL+"/api/member", "application/json", bytes.NewReader(data))
			if err != nil {
				results <- 0
				return
			}
			defer resp.Body.Close()

			var env envelope
			var m member.Member
			if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Success &&
				json.Unmarshal(env.Data, &m) == nil {
				results <- m.ID
				return
			}
			results <- 0
		}(i)
	}

	seen := map[int]bool{}
	for i := 0; i < writers; i++ {
		id := <-results
		require.NotZero(t, id)
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}
