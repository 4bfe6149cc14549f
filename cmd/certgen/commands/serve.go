package commands

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeptools/gw-certs/conf"
	"github.com/zeptools/gw-certs/handlers"
	"github.com/zeptools/gw-certs/routing"
)

const (
	throttleCleanupCycle = 5 * time.Minute
	throttleIdleAfter    = time.Hour
)

func NewServeCommand() *cobra.Command {
	var appRoot string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job scheduler and the admin socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(appRoot)
			if err != nil {
				return err
			}
			return serve(root)
		},
	}
	cmd.Flags().StringVar(&appRoot, "root", ".", "app root holding the config dir")
	return cmd
}

func serve(appRoot string) error {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	core := &conf.Core{}
	if err := core.BaseInit(appRoot, rootCtx, rootCancel); err != nil {
		return err
	}
	defer core.ResourceCleanUp()

	if err := core.PrepareKVDatabase(); err != nil {
		return err
	}
	if err := core.PrepareSQLDatabases(nil); err != nil {
		return err
	}
	if err := core.LoadStorageConf(); err != nil {
		return err
	}
	if err := core.LoadCertsConf(); err != nil {
		return err
	}
	core.PrepareJobScheduler(core.CertsConf.Scheduler)
	core.PrepareThrottleBucketStore(throttleCleanupCycle, throttleIdleAfter, core.CertsConf.Throttle)
	if err := core.PrepareCerts(); err != nil {
		return err
	}

	router := routing.NewBaseRouter()
	core.NewHandlers().Register(router)
	core.PrepareWebService(core.Listen, router)
	if core.UDSSocket != "" {
		core.PrepareUDSService(core.UDSSocket, handlers.AdminCommands(core.Orchestrator))
	}

	if err := core.StartServices(); err != nil {
		core.RootCancel()
		return err
	}
	log.Printf("[INFO][CORE] %s started", core.AppName)
	err := core.WaitServicesDone()
	core.StopServices()
	return err
}
