package pagecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
)

func TestNewWithoutPersistence(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.EnablePersistence = false

	pc, err := New(Options{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	if pc.Cache == nil || pc.States == nil || pc.Refresh == nil || pc.Guard == nil {
		t.Fatal("components not wired")
	}

	ctx := context.Background()
	pc.Guard.CacheFreshData(ctx, "/dashboard", []byte(`{"hello":"world"}`), cache.PageDashboard, cache.ContentPersonalized)

	res := pc.Guard.HandleNavigation(ctx, "/dashboard", "", cache.PageDashboard, cache.ContentPersonalized)
	if !res.UsedCache || string(res.PageData) != `{"hello":"world"}` {
		t.Errorf("result = %+v", res)
	}
}

func TestDurableTierSurvivesRestart(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	pc, err := New(Options{DBFile: dbFile})
	if err != nil {
		t.Fatal(err)
	}
	pc.Guard.CacheFreshData(ctx, "/timetable", []byte(`{"rows":12}`), cache.PageTimetable, cache.ContentPersonalized)
	if err := pc.Close(); err != nil {
		t.Fatal(err)
	}

	// a fresh instance starts with an empty volatile tier and must be
	// served from the durable tier
	pc, err = New(Options{DBFile: dbFile})
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	res := pc.Guard.HandleNavigation(ctx, "/timetable", "", cache.PageTimetable, cache.ContentPersonalized)
	if !res.UsedCache {
		t.Fatal("expected durable hit after restart")
	}
	if string(res.PageData) != `{"rows":12}` {
		t.Errorf("data = %s", res.PageData)
	}
}

func TestLoadOptions(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yml")
	configYaml := `
maxVolatileBytes: 2048
defaultTTL: 1m
staleTTL: 10m
priorityWeights:
  frequency: 0.7
  recency: 0.3
dbFile: ./custom.db
maxStates: 7
staleThreshold: 3m
`
	if err := os.WriteFile(configFile, []byte(configYaml), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadOptions(configFile)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Config.MaxVolatileBytes != 2048 {
		t.Errorf("MaxVolatileBytes = %d", opts.Config.MaxVolatileBytes)
	}
	if opts.Config.DefaultTTL != time.Minute || opts.Config.StaleTTL != 10*time.Minute {
		t.Errorf("TTLs = %s/%s", opts.Config.DefaultTTL, opts.Config.StaleTTL)
	}
	if opts.Config.PriorityWeights.Frequency != 0.7 {
		t.Errorf("weights = %+v", opts.Config.PriorityWeights)
	}
	if opts.DBFile != "./custom.db" || opts.MaxStates != 7 || opts.StaleThreshold != 3*time.Minute {
		t.Errorf("opts = %+v", opts)
	}
}

func TestLoadOptionsBadDuration(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configFile, []byte("defaultTTL: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptions(configFile); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadOptionsMissingFile(t *testing.T) {
	if _, err := LoadOptions("/does/not/exist.yml"); err == nil {
		t.Error("expected error for missing file")
	}
}
