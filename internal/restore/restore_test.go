package restore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/catalog"
	"github.com/roach88/brandquest/internal/codec"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
)

func namingDoc(t *testing.T, name string) json.RawMessage {
	t.Helper()
	doc, err := codec.Encode(mission.NamingResult{
		Answers:     mission.NamingAnswers{Keywords: "k", Style: "modern"},
		Candidates:  []string{name},
		GeneratedAt: time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)
	return doc
}

func remoteWith(doc json.RawMessage, completed bool) *brand.Record {
	rec := &brand.Record{ID: "u", UnlockedMission: 2, Strategy: map[string]json.RawMessage{"naming": doc}}
	if completed {
		rec.Complete(mission.Naming)
	}
	return rec
}

func snapshotOf(doc json.RawMessage) *brand.Snapshot {
	return &brand.Snapshot{RecordID: "u", Mission: mission.Naming, Document: doc}
}

func nameOf(d Decision) string {
	return d.Result.(mission.NamingResult).Name()
}

func TestResolvePrecedence(t *testing.T) {
	remoteDoc := namingDoc(t, "Remote")
	localDoc := namingDoc(t, "Local")

	tests := []struct {
		name     string
		remote   *brand.Record
		local    *brand.Snapshot
		source   Source
		phase    phase.Phase
		result   string
		sync     bool
		shadowed bool
	}{
		{"remote complete wins over local", remoteWith(remoteDoc, true), snapshotOf(localDoc), SourceRemote, phase.Complete, "Remote", false, true},
		{"remote complete alone", remoteWith(remoteDoc, true), nil, SourceRemote, phase.Complete, "Remote", false, false},
		{"remote not marked complete uses local", remoteWith(remoteDoc, false), snapshotOf(localDoc), SourceLocal, phase.Complete, "Local", true, false},
		{"remote corrupt falls back to local", remoteWith(json.RawMessage(`{"candidates":"x"}`), true), snapshotOf(localDoc), SourceLocal, phase.Complete, "Local", true, false},
		{"no remote, local only", nil, snapshotOf(localDoc), SourceLocal, phase.Complete, "Local", true, false},
		{"corrupt local, nothing else", nil, snapshotOf(json.RawMessage(`garbage`)), SourceNone, phase.Intro, "", false, false},
		{"nothing", nil, nil, SourceNone, phase.Intro, "", false, false},
		{"local for another mission is ignored", nil, &brand.Snapshot{Mission: mission.Voice, Document: localDoc}, SourceNone, phase.Intro, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(mission.Naming, tt.remote, tt.local)
			assert.Equal(t, tt.source, d.Source)
			assert.Equal(t, tt.phase, d.Phase)
			assert.Equal(t, tt.sync, d.NeedsSync)
			assert.Equal(t, tt.shadowed, d.ShadowedLocal)
			if tt.result == "" {
				assert.Nil(t, d.Result)
				assert.Empty(t, d.Fingerprint())
			} else {
				assert.Equal(t, tt.result, nameOf(d))
				assert.NotEmpty(t, d.Fingerprint())
			}
		})
	}
}

func TestResolveShadowedLocalMatches(t *testing.T) {
	doc := namingDoc(t, "Same")
	d := Resolve(mission.Naming, remoteWith(doc, true), snapshotOf(doc))
	assert.True(t, d.ShadowedLocal)
	assert.True(t, d.LocalMatches)
}

func TestResolveIsSideEffectFree(t *testing.T) {
	rec := remoteWith(namingDoc(t, "Remote"), true)
	before := rec.Clone()

	first := Resolve(mission.Naming, rec, nil)
	second := Resolve(mission.Naming, rec, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, before, rec)
}

func TestApplyHydratesMachine(t *testing.T) {
	spec := catalog.Default().MustSpec(mission.Naming)

	m := phase.New(spec, nil)
	d := Resolve(mission.Naming, nil, snapshotOf(namingDoc(t, "Local")))
	require.NoError(t, d.Apply(m))
	assert.Equal(t, phase.Complete, m.State().Phase)

	fresh := phase.New(spec, nil)
	require.NoError(t, Resolve(mission.Naming, nil, nil).Apply(fresh))
	assert.Equal(t, phase.Intro, fresh.State().Phase)
}

type fakeRecords struct {
	rec *brand.Record
	err error
}

func (f fakeRecords) Get(context.Context, string) (*brand.Record, error) {
	return f.rec, f.err
}

type fakeSnapshots struct {
	snap *brand.Snapshot
}

func (f fakeSnapshots) GetSnapshot(context.Context, string, mission.ID) (*brand.Snapshot, error) {
	return f.snap, nil
}
func (fakeSnapshots) PutSnapshot(context.Context, brand.Snapshot) error        { return nil }
func (fakeSnapshots) DeleteSnapshot(context.Context, string, mission.ID) error { return nil }
func (fakeSnapshots) ListSnapshots(context.Context, string) ([]brand.Snapshot, error) {
	return nil, nil
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	local := fakeSnapshots{snap: snapshotOf(namingDoc(t, "Local"))}

	t.Run("record missing is fresh", func(t *testing.T) {
		d, rec, err := Load(ctx, fakeRecords{err: brand.ErrNotFound}, fakeSnapshots{}, "u", mission.Naming)
		require.NoError(t, err)
		assert.Equal(t, SourceNone, d.Source)
		assert.Equal(t, 1, rec.UnlockedMission)
	})

	t.Run("record unreachable still restores local", func(t *testing.T) {
		offline := errors.New("connection refused")
		d, rec, err := Load(ctx, fakeRecords{err: offline}, local, "u", mission.Naming)
		assert.ErrorIs(t, err, offline)
		assert.Nil(t, rec)
		assert.Equal(t, SourceLocal, d.Source)
		assert.True(t, d.NeedsSync)
	})

	t.Run("remote confirmed", func(t *testing.T) {
		d, _, err := Load(ctx, fakeRecords{rec: remoteWith(namingDoc(t, "Remote"), true)}, local, "u", mission.Naming)
		require.NoError(t, err)
		assert.Equal(t, SourceRemote, d.Source)
	})
}
