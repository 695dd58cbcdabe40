package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/catalog"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/scoring"
	"github.com/roach88/brandquest/internal/syncer"
)

// fakeServer is a minimal record store that merges patches with brand.ApplyPatch.
type fakeServer struct {
	mu      sync.Mutex
	docs    map[string]*brand.Record
	patches int
	auth    []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{docs: map[string]*brand.Record{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /records/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.auth = append(fs.auth, r.Header.Get("Authorization"))
		rec, ok := fs.docs[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("PATCH /records/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.auth = append(fs.auth, r.Header.Get("Authorization"))
		var body struct {
			Strategy          map[string]json.RawMessage `json:"strategy"`
			UnlockedMission   int                        `json:"unlockedMission"`
			CompletedMissions []mission.ID               `json:"completedMissions"`
			XP                int                        `json:"xp"`
			XPAward           int                        `json:"xpAward"`
			XPToNextLevel     int                        `json:"xpToNextLevel"`
			ClarityScore      int                        `json:"clarityScore"`
			Percentile        int                        `json:"comparativePercentile"`
			LevelLabel        string                     `json:"levelLabel"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := r.PathValue("id")
		rec, ok := fs.docs[id]
		if !ok {
			rec = brand.Fresh(id)
		}
		for key, doc := range body.Strategy {
			m, err := mission.ParseID(key)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rec = brand.ApplyPatch(rec, brand.Patch{
				Mission:               m,
				Document:              doc,
				UnlockedMission:       body.UnlockedMission,
				CompletedMissions:     body.CompletedMissions,
				XP:                    body.XP,
				XPAward:               body.XPAward,
				XPToNextLevel:         body.XPToNextLevel,
				ClarityScore:          body.ClarityScore,
				ComparativePercentile: body.Percentile,
				LevelLabel:            body.LevelLabel,
			})
		}
		fs.docs[id] = rec
		fs.patches++
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func TestGetNotFound(t *testing.T) {
	_, srv := newFakeServer(t)
	c := New(srv.URL, "", srv.Client())

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, brand.ErrNotFound)
}

func TestGetDecodesRecordAndExtras(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/records/user%201", r.URL.EscapedPath())
		_, _ = io.WriteString(w, `{"unlockedMission":3,"completedMissions":[1,2],"xp":180,"theme":"dark"}`)
	}))
	t.Cleanup(srv.Close)

	rec, err := New(srv.URL+"/", "", srv.Client()).Get(context.Background(), "user 1")
	require.NoError(t, err)
	assert.Equal(t, "user 1", rec.ID)
	assert.Equal(t, 180, rec.XP)
	assert.JSONEq(t, `"dark"`, string(rec.Extra["theme"]))
}

func TestStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "", srv.Client())

	_, err := c.Get(context.Background(), "u")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "overloaded", se.Body)

	err = c.Patch(context.Background(), "u", brand.Patch{Mission: mission.Discovery})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.MethodPatch, se.Method)
}

func TestClientBacksCoordinator(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL, "secret", srv.Client())
	coord := syncer.New(c, scoring.New(catalog.Default()))
	ctx := context.Background()

	res := mission.NamingResult{Answers: mission.NamingAnswers{Keywords: "k", Style: "playful"}, Candidates: []string{"Zesty"}}
	out := coord.EnsureSynced(ctx, "u", res)
	require.True(t, out.OK(), "%v", out.Err)
	again := coord.EnsureSynced(ctx, "u", res)
	require.True(t, again.Skipped)

	rec, err := c.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.XP)
	assert.Equal(t, 3, rec.UnlockedMission)
	assert.True(t, rec.Has(mission.Naming))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, 1, fs.patches)
	for _, a := range fs.auth {
		assert.Equal(t, "Bearer secret", a)
	}
}

func TestPatchSendsAwardForServerMerge(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL, "", srv.Client())
	scorer := scoring.New(catalog.Default())
	ctx := context.Background()

	// Both patches come from the same read, as two devices would send them.
	read := brand.Fresh("u")
	require.NoError(t, c.Patch(ctx, "u", scorer.Patch(read, mission.Discovery, json.RawMessage(`{}`))))
	require.NoError(t, c.Patch(ctx, "u", scorer.Patch(read, mission.Naming, json.RawMessage(`{}`))))

	rec, err := c.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 180, rec.XP)
	assert.Equal(t, []mission.ID{mission.Discovery, mission.Naming}, rec.CompletedMissions)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, 2, fs.patches)
}
