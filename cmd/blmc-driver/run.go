// run command: home the robot and hold the initial position
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blmc-robot-go/pkg/blmc"
	"blmc-robot-go/pkg/config"
	"blmc-robot-go/pkg/driver"
	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/log"
	"blmc-robot-go/pkg/metrics"
	"blmc-robot-go/pkg/rt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// monitorEvery is the number of ticks between metrics refreshes
const monitorEvery = 100

type runOptions struct {
	configPath     string
	metricsAddr    string
	torqueConstant float64
	gearRatio      float64
	priority       int
	boardTimeout   time.Duration
	shutdownWait   time.Duration
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Home the joints and hold the initial position until interrupted",
	Long: `Loads the configuration, enables the motor boards, homes the joints and
moves them to the initial position. The position is then held until SIGINT or
SIGTERM is received or a board reports an error, after which the shutdown
trajectory is executed and the motors are paused.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDriver(cmd.Context(), runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.configPath, "config", "c", "", "Robot configuration file (required)")
	f.StringVar(&runOpts.metricsAddr, "metrics-addr", "", "Serve metrics and status on this address (disabled if empty)")
	f.Float64Var(&runOpts.torqueConstant, "torque-constant", driver.DefaultMotorParameters.TorqueConstant, "Motor torque constant in Nm/A")
	f.Float64Var(&runOpts.gearRatio, "gear-ratio", driver.DefaultMotorParameters.GearRatio, "Gear ratio between motor and joint")
	f.IntVar(&runOpts.priority, "rt-priority", rt.DefaultPriority, "SCHED_FIFO priority of the control thread, 0 to disable")
	f.DurationVar(&runOpts.boardTimeout, "board-timeout", 10*time.Second, "Time to wait for the boards to become ready")
	f.DurationVar(&runOpts.shutdownWait, "metrics-shutdown-timeout", 5*time.Second, "Time to wait for metrics clients on exit")
	_ = runCmd.MarkFlagRequired("config")
}

func runDriver(ctx context.Context, opts runOptions) error {
	logger := log.GetLogger("run")

	// Configuration errors are reported before any CAN traffic.
	res, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}
	cfg := res.Config

	if err := rt.LockMemory(); err != nil {
		logger.WithError(err).Warn("could not lock memory, page faults may delay control ticks")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	boards, err := openBoards(ctx, cfg.CANPorts, opts.boardTimeout, logger)
	defer closeBoards(boards, logger)
	if err != nil {
		return err
	}

	motor := driver.MotorParameters{TorqueConstant: opts.torqueConstant, GearRatio: opts.gearRatio}
	joints, err := blmc.NewJointModules(boards, cfg.NumJoints(), motor, cfg.MaxCurrentA,
		blmc.WithJointLogger(log.GetLogger("joints")))
	if err != nil {
		return err
	}
	logger.Info("%s", joints)

	dm := metrics.NewDriverMetrics()
	rtCfg := rt.Config{Priority: opts.priority, Logger: logger}
	d, err := driver.New(cfg, joints, motor,
		driver.WithRecorder(dm),
		driver.WithRTConfig(rtCfg),
		driver.WithLogger(log.GetLogger("driver")))
	if err != nil {
		return err
	}

	var srv *metrics.Server
	if opts.metricsAddr != "" {
		scfg := metrics.DefaultServerConfig()
		scfg.Address = opts.metricsAddr
		srv = metrics.NewServer(dm, metrics.DriverStatus(d), scfg)
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), opts.shutdownWait)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		if err := d.Initialize(gctx); err != nil {
			return err
		}
		if angles, ok := d.MeasuredIndexAngles(); ok {
			logger.WithField("angles", angles.String()).Info("encoder index angles relative to home")
		}
		return rt.RunToCompletion(gctx, rtCfg, func(ctx context.Context) error {
			return holdIdle(ctx, d, dm, boards)
		})
	})
	runErr := g.Wait()
	if stderrors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		logger.WithError(runErr).Error("driver stopped")
	}

	// Shutdown must not be cut short by the signal that requested it.
	if d.State() == driver.StateReady {
		if err := d.Shutdown(context.Background()); err != nil {
			runErr = stderrors.Join(runErr, err)
		}
	} else {
		joints.PauseMotors()
	}
	logger.WithField("actions", d.ActionCount()).Info("driver stopped")
	return runErr
}

// holdIdle applies the idle action every tick until ctx is done or a board
// reports an error.
func holdIdle(ctx context.Context, d *driver.Driver, dm *metrics.DriverMetrics, boards []*blmc.Board) error {
	for tick := 0; ; tick++ {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := d.ApplyAction(d.IdleAction()); err != nil {
			return err
		}
		if msg := d.GetError(); msg != "" {
			return errors.RuntimeError(msg)
		}
		if tick%monitorEvery == 0 {
			dm.UpdateObservation(d.LatestObservation())
			dm.UpdateBoards(d.BoardStatuses())
			for _, b := range boards {
				st := b.Stats()
				dm.UpdateFrameCount(b.Name(), st.TxFrames, st.RxFrames)
			}
		}
	}
}

// openBoards dials, enables and waits for one board per CAN port. Boards
// opened before a failure are returned so they can be closed.
func openBoards(ctx context.Context, ports []string, timeout time.Duration, logger *log.Logger) ([]*blmc.Board, error) {
	var boards []*blmc.Board
	for _, port := range ports {
		bus, err := blmc.DialSocketCAN(ctx, port)
		if err != nil {
			return boards, err
		}
		b := blmc.NewBoard(port, bus, blmc.WithBoardLogger(logger))
		boards = append(boards, b)
		if err := b.Start(ctx); err != nil {
			return boards, err
		}
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, b := range boards {
		if err := b.WaitUntilReady(wctx); err != nil {
			return boards, fmt.Errorf("board %s not ready: %w", b.Name(), err)
		}
		logger.WithField("board", b.Name()).Info("board ready")
	}
	return boards, nil
}

func closeBoards(boards []*blmc.Board, logger *log.Logger) {
	for _, b := range boards {
		if err := b.Close(); err != nil {
			logger.WithError(err).WithField("board", b.Name()).Warn("closing board")
		}
	}
}
