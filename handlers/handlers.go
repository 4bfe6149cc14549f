package handlers

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/records"
	"github.com/zeptools/gw-certs/routing"
	"github.com/zeptools/gw-certs/sec"
	"github.com/zeptools/gw-certs/throttle"
)

const (
	MaxBodyBytes        = 1 << 20
	DefaultPollInterval = time.Second
)

// JobService is the job surface of orchestrator.Orchestrator
type JobService interface {
	Submit(ctx context.Context, recordIDs []string, requesterKey string) (string, error)
	Progress(ctx context.Context, jobID string) (jobs.Progress, error)
}

// DocumentProducer is documents.Producer
type DocumentProducer interface {
	Produce(ctx context.Context, recordID string) (certs.RenderResult, error)
}

type Handlers struct {
	Jobs         JobService
	Records      records.Store
	Documents    DocumentProducer
	Signer       *sec.DownloadSigner
	Throttle     *throttle.BucketStore[string] // nil disables throttling
	ArchiveDir   string
	PollInterval time.Duration
	Debug        bool
	upgrader     websocket.Upgrader
	now          func() time.Time
}

func New(jobSvc JobService, store records.Store, producer DocumentProducer, signer *sec.DownloadSigner, archiveDir string) *Handlers {
	return &Handlers{
		Jobs:         jobSvc,
		Records:      store,
		Documents:    producer,
		Signer:       signer,
		ArchiveDir:   archiveDir,
		PollInterval: DefaultPollInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

// Register mounts every route on r behind the panic recovery wrapper
func (h *Handlers) Register(r *routing.BaseRouter) {
	recoverer := routing.HandlerWrapperFunc(routing.RecoverWrapper)
	r.Group("/jobs", func(g *routing.RouteGroup) {
		g.HandleFunc("POST ", h.SubmitJob)
		g.HandleFunc("GET /{id}", h.JobProgress)
		g.HandleFunc("GET /{id}/ws", h.WatchJob)
	}, recoverer)
	r.Group("/downloads", func(g *routing.RouteGroup) {
		g.HandleFunc("GET ", h.Download)
		g.HandleFunc("GET /{token}", h.Download)
	}, recoverer)
	r.Group("/records", func(g *routing.RouteGroup) {
		g.HandleFunc("GET /{id}/certificate", h.Certificate)
	}, recoverer)
}

func (h *Handlers) allow(group, key string) bool {
	if h.Throttle == nil {
		return true
	}
	return h.Throttle.Allow(group, key, h.now())
}

func (h *Handlers) pollInterval() time.Duration {
	if h.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return h.PollInterval
}
