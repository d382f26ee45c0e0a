package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/internal/influence"
	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/internal/storage/sqlite"
)

// run executes the CLI with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useFixture(t *testing.T) {
	t.Helper()
	t.Setenv("RELGRAPH_STORAGE_ENGINE", "file")
	t.Setenv("RELGRAPH_FIXTURE_PATH", filepath.Join("testdata", "graph.yaml"))
	t.Setenv("RELGRAPH_TUNING_FILE", "")
}

func TestIntros(t *testing.T) {
	useFixture(t)

	out, err := run(t, "intros", "trent", "--json")
	require.NoError(t, err)
	var res intro.WarmResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Introductions, 2)
	assert.Equal(t, 2, res.Diagnostics.SeedsConsidered)

	out, err = run(t, "intros", "trent")
	require.NoError(t, err)
	assert.Contains(t, out, "Warm introductions to trent")
	assert.Contains(t, out, "alice -> mallory -> trent")
	assert.Contains(t, out, "bob -> trent")

	out, err = run(t, "intros", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "target not found")
}

func TestIntros_Batch(t *testing.T) {
	useFixture(t)

	out, err := run(t, "intros", "trent", "acme", "--seeds", "bob", "--json")
	require.NoError(t, err)
	var items []intro.BatchItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "trent", items[0].Target)
	assert.Equal(t, "acme", items[1].Target)
	require.NotNil(t, items[1].Result)
	require.NotEmpty(t, items[1].Result.Introductions)
	assert.Equal(t, []string{"bob", "trent", "acme"}, items[1].Result.Introductions[0].Nodes)
}

func TestIntros_BadStrategy(t *testing.T) {
	useFixture(t)
	_, err := run(t, "intros", "trent", "--strategies", "teleport")
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	useFixture(t)

	out, err := run(t, "paths", "alice", "trent", "--strategies", "shortest", "--json")
	require.NoError(t, err)
	var res intro.PathResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"alice", "mallory", "trent"}, res.Paths[0].Nodes)

	out, err = run(t, "paths", "alice", "acme", "--mode", "optimal")
	require.NoError(t, err)
	assert.Contains(t, out, "alice -> mallory -> trent -> acme")
	assert.Contains(t, out, "3 degrees of separation")

	_, err = run(t, "paths", "alice", "trent", "--mode", "fastest")
	assert.Error(t, err)

	_, err = run(t, "paths", "alice")
	assert.Error(t, err)
}

func TestConnectivityAndInsights(t *testing.T) {
	useFixture(t)

	out, err := run(t, "connectivity", "trent")
	require.NoError(t, err)
	var summary influence.ConnectivitySummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "trent", summary.EntityID)
	assert.Equal(t, 3, summary.TotalConnections)

	_, err = run(t, "connectivity", "ghost")
	assert.Error(t, err)

	out, err = run(t, "insights", "--top", "2")
	require.NoError(t, err)
	var ins influence.NetworkInsights
	require.NoError(t, json.Unmarshal([]byte(out), &ins))
	assert.Equal(t, 5, ins.TotalEntities)
	assert.Equal(t, 4, ins.TotalConnections)
}

func TestImportAndPublish_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "relgraph.db")
	t.Setenv("RELGRAPH_STORAGE_ENGINE", "sqlite")
	t.Setenv("RELGRAPH_SQLITE_PATH", dbPath)
	t.Setenv("RELGRAPH_TUNING_FILE", "")
	eventsDir := filepath.Join(t.TempDir(), "events")
	t.Setenv("RELGRAPH_EVENTS_DIR", eventsDir)

	out, err := run(t, "import", filepath.Join("testdata", "graph.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "imported 5 entities and 4 edges")
	events, err := os.ReadDir(eventsDir)
	require.NoError(t, err)
	assert.Len(t, events, 1, "running servers are notified")

	out, err = run(t, "publish", "trent", "--insights")
	require.NoError(t, err)
	assert.Contains(t, out, "trent: 2 introduction paths published")
	assert.Contains(t, out, "network insights")

	store, err := sqlite.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.GetIntroductionPath(context.Background(), "alice", "trent")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "mallory", "trent"}, rec.Path.Nodes)

	payload, err := store.GetNetworkInsights(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"total_entities":5`)
}

func TestPublish_NothingToDo(t *testing.T) {
	useFixture(t)
	_, err := run(t, "publish")
	assert.Error(t, err)
}

func TestTuningFlag(t *testing.T) {
	useFixture(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scoring:\n  decay: 0.5\n"), 0o600))
	_, err := run(t, "--tuning", bad, "insights")
	assert.Error(t, err)

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("warm_introductions:\n  max_hops: 1\n"), 0o600))
	out, err := run(t, "--tuning", good, "intros", "trent", "--json")
	require.NoError(t, err)
	var res intro.WarmResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Introductions, 1)
	assert.Equal(t, []string{"bob", "trent"}, res.Introductions[0].Nodes)
}
