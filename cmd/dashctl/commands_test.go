package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
)

// fakeAPI accepts anna/secret and serves a small incident feed
type fakeAPI struct {
	mu       sync.Mutex
	access   string
	refresh  string
	seq      int
	datasets []domain.Dataset
	server   *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{datasets: []domain.Dataset{
		{ID: 1, Title: "Incidències viàries", Format: "XML", Category: "Mobilitat"},
		{ID: 2, Title: "Qualitat de l'aire", Format: "CSV", Category: "Medi ambient"},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "anna" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.issue(w)
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		ok := body["refresh_token"] != "" && body["refresh_token"] == f.refresh
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.issue(w)
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.access, f.refresh = "", ""
		f.mu.Unlock()
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"username":"anna"}`))
	})
	mux.HandleFunc("/datasets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.datasets)
	})
	mux.HandleFunc("/datasets/2", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var d domain.Dataset
		_ = json.NewDecoder(r.Body).Decode(&d)
		_ = json.NewEncoder(w).Encode(d)
	})
	mux.HandleFunc("/api/incidencies/raw", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"carretera":"AP-7","causa":"Accident","nivell":4,"lat":41.40,"lon":2.17},
			{"carretera":"AP-7","causa":"Retenció","nivell":2,"lat":41.42,"lon":2.19},
			{"carretera":"C-66","causa":"Obres","nivell":1,"lat":42.10,"lon":2.90}
		]`))
	})
	mux.HandleFunc("/rag/ask", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"AP-7"}`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) issue(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.access = "access-" + strings.Repeat("x", f.seq)
	f.refresh = "refresh-" + strings.Repeat("y", f.seq)
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": f.access, "refresh_token": f.refresh})
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access != "" && r.Header.Get("Authorization") == "Bearer "+f.access
}

func run(t *testing.T, api *fakeAPI, state string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AUTH_MODE", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--api-url", api.server.URL, "--state", state}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	api := newFakeAPI(t)
	state := filepath.Join(t.TempDir(), "state.db")

	_, err := run(t, api, state, "login", "-u", "anna", "-p", "wrong")
	assert.Error(t, err)

	out, err := run(t, api, state, "login", "-u", "anna", "-p", "secret")
	require.NoError(t, err)
	var info domain.SessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Authenticated)
	assert.Equal(t, "anna", info.Identity)

	// a new process resumes from the stored refresh credential
	out, err = run(t, api, state, "whoami")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Authenticated)

	out, err = run(t, api, state, "logout")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.False(t, info.Authenticated)

	out, err = run(t, api, state, "whoami")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.False(t, info.Authenticated)
}

func TestIncidentsCommand(t *testing.T) {
	api := newFakeAPI(t)
	state := filepath.Join(t.TempDir(), "state.db")

	out, err := run(t, api, state, "incidents", "--area", "metro-area", "--summary", "-o", "yaml")
	require.NoError(t, err)

	var agg map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &agg))
	assert.Equal(t, 2, agg["total"])
	assert.Equal(t, "AP-7", agg["topaffectedroad"])

	_, err = run(t, api, state, "incidents", "--kind", "meteor")
	assert.Error(t, err)
}

func TestIncidentsCommand_FlagHelpListsAcceptedValues(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"incidents"})
	require.NoError(t, err)

	values := func(flag string) []string {
		usage := cmd.Flags().Lookup(flag).Usage
		return strings.Split(strings.ReplaceAll(usage, " or ", ", "), ", ")
	}

	roadClasses := values("road-class")
	require.Len(t, roadClasses, 4)
	for _, v := range roadClasses {
		_, err := incident.ParseRoadClass(v)
		assert.NoError(t, err, v)
	}

	kinds := values("kind")
	require.Len(t, kinds, len(domain.Kinds))
	for _, v := range kinds {
		_, err := incident.ParseKind(v)
		assert.NoError(t, err, v)
	}
}

func TestDatasetsCommands(t *testing.T) {
	api := newFakeAPI(t)
	state := filepath.Join(t.TempDir(), "state.db")

	out, err := run(t, api, state, "datasets", "list", "-q", "AIRE")
	require.NoError(t, err)
	var list []domain.Dataset
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ID)

	out, err = run(t, api, state, "datasets", "get", "1", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "title: Incidències viàries")

	_, err = run(t, api, state, "datasets", "get", "x")
	assert.Error(t, err)

	_, err = run(t, api, state, "datasets", "update", "2", "--title", "Aire")
	assert.Error(t, err, "update needs a session")

	_, err = run(t, api, state, "login", "-u", "anna", "-p", "secret")
	require.NoError(t, err)
	out, err = run(t, api, state, "datasets", "update", "2", "--title", "Aire")
	require.NoError(t, err)
	var updated domain.Dataset
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, "Aire", updated.Title)
	assert.Equal(t, "CSV", updated.Format, "unset flags keep their value")
}

func TestAskCommand(t *testing.T) {
	api := newFakeAPI(t)
	state := filepath.Join(t.TempDir(), "state.db")

	out, err := run(t, api, state, "ask", "quina", "via?", "--file-type", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, `"answer": "AP-7"`)

	_, err = run(t, api, state, "-o", "xml", "ask", "q")
	assert.Error(t, err)
}
