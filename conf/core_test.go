package conf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zeptools/gw-certs/archive"
	"github.com/zeptools/gw-certs/db/kvdb"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/throttle"
)

func writeConf(t *testing.T, root, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "config", name), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newAppRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.ToSlash(filepath.Join(root, "out"))
	writeConf(t, root, ".core.json", `{"app_name":"gw-certs","listen":"127.0.0.1:0","host":"certs.example.org","debug_opts":{"debug_responses":true}}`)
	writeConf(t, root, ".kv-databases.json", `{"type":"memory","key_prefix":"test"}`)
	writeConf(t, root, ".storages.json", `{"type":"local","signed_url_ttl":"30m"}`)
	writeConf(t, root, ".certs.json", `{
		"signing_key": "0123456789abcdef0123456789abcdef",
		"job_ttl": "2h",
		"records_file": "records.json",
		"documents": {"output_dir": "`+out+`/docs"},
		"backgrounds": {"timeout": "3s"},
		"archive": {"output_dir": "`+out+`/archives", "temp_dir": "`+out+`/tmp", "retention": "90m"},
		"orchestrator": {"batch_delay": "0s"},
		"scheduler": {"tick": "100ms", "workers": 2},
		"throttle": {"submit": {"burst": 5, "period": "1m"}}
	}`)
	if err := os.WriteFile(filepath.Join(root, "records.json"), []byte(`[
		{"id":"1","post_type":"students","title":"Ana Lee","meta":{"cert_type":"honor"}},
		{"id":"2","post_type":"students","title":"Bo Chen","meta":{"cert_type":"honor"}}
	]`), 0o600); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestPrepareCerts(t *testing.T) {
	root := newAppRoot(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Core{}
	if err := c.BaseInit(root, ctx, cancel); err != nil {
		t.Fatalf("BaseInit: %v", err)
	}
	if c.BaseURL != "https://certs.example.org" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"kv", c.PrepareKVDatabase},
		{"sql", func() error { return c.PrepareSQLDatabases(nil) }},
		{"storage", c.LoadStorageConf},
		{"certs conf", c.LoadCertsConf},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
	}
	cc := c.CertsConf
	if cc.JobTTL != 2*time.Hour || cc.Archive.Retention != 90*time.Minute || cc.Scheduler.Tick != 100*time.Millisecond {
		t.Errorf("durations not parsed: %+v", cc)
	}
	if cc.Orchestrator.BatchDelay != 0 {
		t.Errorf("explicit zero batch delay = %v", cc.Orchestrator.BatchDelay)
	}
	if c.StorageConf.SignedURLTTL != 30*time.Minute {
		t.Errorf("signed url ttl = %v", c.StorageConf.SignedURLTTL)
	}

	// left by a previous run, its cleanup task went with that process
	stale := filepath.Join(cc.Archive.OutputDir, "certificates_0123456789ab_1_abcdef.zip")
	if err := os.MkdirAll(cc.Archive.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	c.PrepareJobScheduler(cc.Scheduler)
	c.PrepareThrottleBucketStore(time.Minute, time.Hour, cc.Throttle)
	if err := c.PrepareCerts(); err != nil {
		t.Fatalf("PrepareCerts: %v", err)
	}
	if _, ok := c.Publisher.(*archive.LocalPublisher); !ok {
		t.Errorf("publisher = %T", c.Publisher)
	}
	if rec, err := c.Records.Get(ctx, "2"); err != nil || rec.Title != "Bo Chen" {
		t.Errorf("record 2 = %+v, %v", rec, err)
	}
	if _, ok := c.ThrottleBucketStore.GetBucketGroup(throttle.GroupSubmit); !ok {
		t.Error("submit throttle group missing")
	}
	var cronIDs []string
	for _, j := range c.JobScheduler.GetCronJobs() {
		cronIDs = append(cronIDs, j.ID)
	}
	if strings.Join(cronIDs, ",") != "archive-sweep,certs-reconcile" {
		t.Errorf("cron jobs = %v", cronIDs)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale archive not swept at startup: %v", err)
	}

	id, err := c.Orchestrator.Submit(ctx, []string{"1", "2"}, "a@b.c")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(id, "cert_job_") || !c.JobScheduler.HasJob(id+":batch:0") {
		t.Errorf("job %s not queued", id)
	}
	p, err := c.Orchestrator.Progress(ctx, id)
	if err != nil || p.Status != jobs.StatusPending || p.Total != 2 {
		t.Errorf("progress = %+v, %v", p, err)
	}
	if h := c.NewHandlers(); !h.Debug || h.Throttle == nil {
		t.Errorf("handlers = %+v", h)
	}
	if err := c.ResourceCleanUp(); err != nil {
		t.Errorf("cleanup: %v", err)
	}
}

func TestCertsConfRejects(t *testing.T) {
	tests := []struct {
		name string
		conf CertsConf
	}{
		{"short key", CertsConf{SigningKey: "short"}},
		{"no output dir", CertsConf{SigningKey: strings.Repeat("k", 32)}},
		{"bad ttl", CertsConf{SigningKey: strings.Repeat("k", 32), JobTTLStr: "forever"}},
	}
	for _, tt := range tests {
		if err := tt.conf.Normalize(); err == nil {
			t.Errorf("%s: accepted", tt.name)
		}
	}
}

func TestPrepareKVDatabaseUnsupported(t *testing.T) {
	root := newAppRoot(t)
	writeConf(t, root, ".kv-databases.json", `{"type":"memcached"}`)
	c := &Core{AppRoot: root}
	if err := c.PrepareKVDatabase(); !errors.Is(err, kvdb.ErrUnsupportedType) {
		t.Errorf("err = %v", err)
	}
}
