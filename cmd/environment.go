package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kubev2v/vsphere-machinery/internal/config"
	"github.com/kubev2v/vsphere-machinery/internal/registry"
	"github.com/kubev2v/vsphere-machinery/internal/services"
	"github.com/kubev2v/vsphere-machinery/internal/store"
	"github.com/kubev2v/vsphere-machinery/internal/store/migrations"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/metrics"
	"github.com/kubev2v/vsphere-machinery/pkg/scheduler"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
)

// environment wires the machinery service to its database, worker pool and
// vSphere host.
type environment struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	machinery *services.MachineryService
}

// newEnvironment opens the database at dbPath, loads the machines file into
// it and builds the machinery service.
func newEnvironment(ctx context.Context, cfg *config.Configuration, dbPath string) (*environment, error) {
	machines, err := registry.Load(cfg.Agent.MachinesFile)
	if err != nil {
		return nil, err
	}

	db, err := store.NewDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	st := store.NewStore(db)
	if err := st.Machines().Replace(ctx, machines); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to load machines: %w", err)
	}

	dumpFolder, err := filepath.Abs(cfg.Agent.DumpFolder)
	if err != nil {
		_ = st.Close()
		return nil, srvErrors.NewConfigurationError("invalid dump-folder: %v", err)
	}

	workers := cfg.Agent.NumWorkers
	if workers < 1 {
		workers = 1
	}

	env := &environment{
		store:     st,
		scheduler: scheduler.NewScheduler(workers),
		metrics:   metrics.New(),
	}
	env.machinery = services.NewMachineryService(
		vmware.NewConnector(connectionParameters(cfg.VSphere)),
		st,
		env.scheduler,
		env.metrics,
		cfg.Agent.TaskTimeout,
	).WithPrivilegeCheck(cfg.VSphere.PrivilegeUser).WithDumpFolder(dumpFolder)

	return env, nil
}

// Close stops the asynchronous work before closing the database it writes to.
func (e *environment) Close() {
	e.machinery.Close()
	e.scheduler.Close()
	_ = e.store.Close()
}

func connectionParameters(cfg config.VSphere) vmware.ConnectionParameters {
	return vmware.ConnectionParameters{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           cfg.Password,
		InsecureSkipVerify: cfg.Insecure,
	}
}
