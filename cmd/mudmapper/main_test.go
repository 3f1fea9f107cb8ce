package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/mudmapper/pkg/boltstore"
	"github.com/crystal-mush/mudmapper/pkg/mapper"
	"github.com/crystal-mush/mudmapper/pkg/session"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// workspace writes a config and a three-room map: Gate -n-> Road -n-> Inn.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	g := worldmap.New("test", nil)
	g.UpsertRoom("A", worldmap.RoomData{Name: "Gate", Area: "Town", Exits: map[string]string{"n": "B"}})
	g.UpsertRoom("B", worldmap.RoomData{Name: "Road", Area: "Town", Exits: map[string]string{"n": "C", "s": "A"}})
	g.UpsertRoom("C", worldmap.RoomData{Name: "Inn", Area: "Town", Exits: map[string]string{"s": "B", "e": "D"}})
	g.Tag("C", "inn")
	g.SetCurrentRoom("A")
	require.NoError(t, g.SaveJSON(filepath.Join(dir, "world.json")))

	cfgPath := filepath.Join(dir, "mudmapper.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("map:\n  name: test\n  path: world.json\nlog:\n  level: error\n"), 0o644))

	configPath = cfgPath
	t.Cleanup(func() {
		configPath = ""
		routeFrom = ""
		statsUnexplored = false
		dotOutput = ""
		checkFix = false
		checkJSON = false
		mapsDelete = ""
		findArea = ""
		findName = ""
		findTag = ""
	})
	return dir
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := fn(cmd, args)
	return out.String(), err
}

func TestRouteCmd(t *testing.T) {
	workspace(t)

	out, err := run(t, runRoute, "inn")
	require.NoError(t, err)
	assert.Contains(t, out, "2n\n")
	assert.Contains(t, out, "Road (B)")

	routeFrom = "C"
	out, err = run(t, runRoute, "gate")
	require.NoError(t, err)
	assert.Contains(t, out, "2s\n")

	out, err = run(t, runRoute, "C")
	require.NoError(t, err)
	assert.Equal(t, "already in Inn (C)\n", out)

	_, err = run(t, runRoute, "castle")
	assert.Error(t, err)

	routeFrom = "Z"
	_, err = run(t, runRoute, "A")
	assert.EqualError(t, err, `unknown room "Z"`)
}

func TestStatsCmd(t *testing.T) {
	workspace(t)
	statsUnexplored = true

	out, err := run(t, runStats)
	require.NoError(t, err)
	var report struct {
		Map        string             `json:"map"`
		Stats      worldmap.Stats     `json:"stats"`
		Unexplored []worldmap.ExitRef `json:"unexplored"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "test", report.Map)
	assert.Equal(t, 4, report.Stats.Rooms)
	assert.Equal(t, 3, report.Stats.Explored)
	assert.Equal(t, []worldmap.ExitRef{{From: "C", Direction: worldmap.East, To: "D"}}, report.Unexplored)
}

func TestLayoutAndDotCmds(t *testing.T) {
	dir := workspace(t)

	out, err := run(t, runLayout)
	require.NoError(t, err)
	assert.Equal(t, "laid out 4 rooms\n", out)
	g, err := worldmap.LoadJSON(filepath.Join(dir, "world.json"), nil)
	require.NoError(t, err)
	assert.False(t, g.LayoutDirty())

	out, err = run(t, runDot)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	dotOutput = filepath.Join(dir, "out", "world.dot")
	_, err = run(t, runDot)
	require.NoError(t, err)
	data, err := os.ReadFile(dotOutput)
	require.NoError(t, err)
	assert.Contains(t, string(data), `label="Inn"`)
}

func TestCheckCmd(t *testing.T) {
	dir := workspace(t)

	out, err := run(t, runCheck)
	require.NoError(t, err)
	assert.Contains(t, out, "0 findings in test")

	broken := `{"name":"test","schema_version":1,"current_room_id":"Z","rooms":[
  {"id":"A","name":"Gate","explored":true,"visit_count":1,"exits":{"north":"B"}},
  {"id":"B","name":"Road","explored":true,"visit_count":0,"exits":{"s":"A"}}],
 "edges":[{"from":"A","to":"B","direction":"n"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.json"), []byte(broken), 0o644))

	checkJSON = true
	out, err = run(t, runCheck)
	require.NoError(t, err)
	var report struct {
		TotalFindings int `json:"total_findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 4, report.TotalFindings, out)

	checkJSON = false
	checkFix = true
	out, err = run(t, runCheck)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 4 fixes")

	checkFix = false
	out, err = run(t, runCheck)
	require.NoError(t, err)
	assert.Contains(t, out, "0 findings in test")

	g, err := worldmap.LoadJSON(filepath.Join(dir, "world.json"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, g.EdgeCount())
	assert.Empty(t, g.CurrentRoom())
}

func TestFindCmd(t *testing.T) {
	workspace(t)

	_, err := run(t, runFind)
	assert.Error(t, err)

	findArea = "town"
	out, err := run(t, runFind)
	require.NoError(t, err)
	assert.Contains(t, out, "3 rooms\n")

	findName = "ROAD"
	out, err = run(t, runFind)
	require.NoError(t, err)
	assert.Contains(t, out, "Road [Town]")
	assert.Contains(t, out, "1 rooms\n")

	findName = ""
	findTag = "inn"
	out, err = run(t, runFind)
	require.NoError(t, err)
	assert.Contains(t, out, "Inn [Town]")
	assert.NotContains(t, out, "Gate")
}

// boltWorkspace stores two maps in a bolt database and points the config
// at it.
func boltWorkspace(t *testing.T) string {
	t.Helper()
	dir := workspace(t)
	db, err := boltstore.Open(filepath.Join(dir, "maps.db"), nil)
	require.NoError(t, err)
	for _, name := range []string{"test", "old"} {
		g := worldmap.New(name, nil)
		g.UpsertRoom("A", worldmap.RoomData{Name: "Gate", Exits: map[string]string{"n": "B"}})
		require.NoError(t, db.SaveGraph(g))
	}
	require.NoError(t, db.SaveGraph(worldmap.New("test", nil)))
	require.NoError(t, db.Close())

	cfg := "map:\n  name: test\n  store: bolt\n  bolt_path: maps.db\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))
	return dir
}

func TestMapsCmd(t *testing.T) {
	boltWorkspace(t)

	out, err := run(t, runMaps)
	require.NoError(t, err)
	assert.Regexp(t, `old\s+1 saves`, out)
	assert.Regexp(t, `test\s+2 saves`, out)

	mapsDelete = "old"
	out, err = run(t, runMaps)
	require.NoError(t, err)
	assert.Equal(t, "deleted old\n", out)

	mapsDelete = ""
	out, err = run(t, runMaps)
	require.NoError(t, err)
	assert.NotContains(t, out, "old")
}

func TestMapsCmdNeedsBolt(t *testing.T) {
	workspace(t)
	_, err := run(t, runMaps)
	assert.EqualError(t, err, "maps needs the bolt map store")
}

func TestBackupCmd(t *testing.T) {
	dir := boltWorkspace(t)

	dst := filepath.Join(dir, "copy.db")
	out, err := run(t, runBackup, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "backup written")

	copied, err := boltstore.Open(dst, nil)
	require.NoError(t, err)
	defer copied.Close()
	names, err := copied.Maps()
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "test"}, names)
}

func TestBackupCmdJSON(t *testing.T) {
	dir := workspace(t)

	dst := filepath.Join(dir, "backups", "world.json")
	_, err := run(t, runBackup, dst)
	require.NoError(t, err)
	g, err := worldmap.LoadJSON(dst, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
}

func TestLocalCommands(t *testing.T) {
	g := worldmap.New("test", nil)
	s, err := session.New(session.Options{Agent: mapper.New(g, mapper.Options{})})
	require.NoError(t, err)
	ctx := context.Background()

	var out bytes.Buffer
	assert.True(t, localCommand(ctx, &out, s, "/channels"))
	assert.Equal(t, "** no channel messages\n", out.String())

	_, err = s.Dispatcher().Dispatch("Comm.Channel.Text", []byte(`{"channel":"chat","talker":"ann","text":"hello"}`))
	require.NoError(t, err)
	out.Reset()
	localCommand(ctx, &out, s, "/channels")
	assert.Equal(t, "** [chat] ann: hello\n", out.String())

	// The live map is only reachable while the session runs.
	out.Reset()
	localCommand(ctx, &out, s, "/adjacent")
	assert.Equal(t, "** session: not ready\n", out.String())

	out.Reset()
	localCommand(ctx, &out, s, "/where")
	assert.Equal(t, "** position unknown\n", out.String())

	out.Reset()
	localCommand(ctx, &out, s, "/dance")
	assert.Equal(t, "** unknown command /dance\n", out.String())

	assert.False(t, localCommand(ctx, &out, s, "/quit"))
}

func TestSetupRejectsBadConfig(t *testing.T) {
	workspace(t)
	logLevel = "loud"
	defer func() { logLevel = "" }()
	_, err := setup()
	assert.Error(t, err)
}

func TestExplorer(t *testing.T) {
	g := worldmap.New("test", nil)
	g.UpsertRoom("A", worldmap.RoomData{Name: "Gate", Exits: map[string]string{"n": "B", "e": "C", "w": "D"}})
	g.UpsertRoom("B", worldmap.RoomData{Name: "Road"})
	g.UpsertRoom("C", worldmap.RoomData{Name: "Field"})
	snap := g.Snapshot()
	e := explorer{snapshot: func() *worldmap.Snapshot { return snap }}

	room, _ := snap.Room("A")
	cmd, err := e.Decide(context.Background(), session.DecisionInput{Room: room})
	require.NoError(t, err)
	assert.Equal(t, "w", cmd, "D is unexplored")

	g.UpsertRoom("D", worldmap.RoomData{Name: "Wood"})
	g.UpsertRoom("D", worldmap.RoomData{Name: "Wood"})
	g.UpsertRoom("B", worldmap.RoomData{Name: "Road"})
	snap = g.Snapshot()
	room, _ = snap.Room("A")
	cmd, err = e.Decide(context.Background(), session.DecisionInput{Room: room})
	require.NoError(t, err)
	assert.Equal(t, "e", cmd, "C has the fewest visits")

	cmd, err = e.Decide(context.Background(), session.DecisionInput{})
	require.NoError(t, err)
	assert.Empty(t, cmd)
}
