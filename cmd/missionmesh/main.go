// Command missionmesh runs the mission orchestrator: serve exposes the HTTP
// and WebSocket surfaces, run executes one manifest to completion from the
// terminal, validate checks a manifest without starting anything.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/missionmesh"
	"github.com/hupe1980/missionmesh/config"
	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/graph"
	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/server"
	"github.com/hupe1980/missionmesh/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "missionmesh",
		Short:         "Multi-agent mission orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "json", "log format (json, text)")
	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", root.PersistentFlags().Lookup("log-format"))
	viper.SetEnvPrefix("MISSIONMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root.AddCommand(newServeCmd(), newRunCmd(), newValidateCmd())
	return root
}

func newLogger() *logging.MissionLogger {
	level := logging.LogLevelInfo
	switch viper.GetString("log_level") {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: viper.GetString("log_format"),
		Output: os.Stderr,
	})
}

func newMesh(logger *logging.MissionLogger) (*missionmesh.MissionMesh, error) {
	var runStore core.RunStore
	if dsn := viper.GetString("dsn"); dsn != "" {
		s, err := store.New(dsn)
		if err != nil {
			return nil, err
		}
		runStore = s
	}

	return missionmesh.New(func(o *missionmesh.Options) {
		o.Logger = logger
		o.Store = runStore
		o.WorkerLimit = viper.GetInt64("worker_limit")
	}), nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface and WebSocket event streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			mesh, err := newMesh(logger)
			if err != nil {
				return err
			}

			addr := fmt.Sprintf("%s:%d", viper.GetString("host"), viper.GetInt("port"))
			srv := server.New(mesh.Registry(), func(o *server.Options) {
				o.Logger = logger
			})
			return srv.Run(addr)
		},
	}

	cmd.Flags().String("host", "127.0.0.1", "listen host")
	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().String("dsn", "", "MySQL DSN for durable run history (empty disables persistence)")
	cmd.Flags().Int64("worker-limit", 0, "max concurrent tasks per run (0 = unbounded)")
	_ = viper.BindPFlag("host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("dsn", cmd.Flags().Lookup("dsn"))
	_ = viper.BindPFlag("worker_limit", cmd.Flags().Lookup("worker-limit"))

	return cmd
}

func newRunCmd() *cobra.Command {
	var engine string

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Execute one mission manifest and stream its events to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			mesh, err := newMesh(logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			result, err := mesh.Start(ctx, args[0], engine)
			if err != nil {
				return err
			}
			fmt.Printf("run %s started (%s)\n", result.RunID, result.Project)

			go func() {
				<-ctx.Done()
				mesh.Stop(result.RunID)
			}()

			events, err := mesh.Wait(context.Background(), result.RunID)
			if err != nil {
				return err
			}
			for _, ev := range events {
				printEvent(ev)
			}
			last := events[len(events)-1]
			if last.Type == core.EventError {
				return fmt.Errorf("run failed: %s", last.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", "engine override (react, reflect)")
	return cmd
}

func printEvent(ev core.Event) {
	switch ev.Type {
	case core.EventPlan:
		fmt.Printf("[%04d] plan: %d tasks\n", ev.Seq, len(ev.Tasks))
	case core.EventStatus:
		fmt.Printf("[%04d] %s -> %s\n", ev.Seq, ev.TaskID, ev.Status)
	case core.EventConsole:
		fmt.Printf("[%04d] %s: %s\n", ev.Seq, ev.TaskID, ev.Message)
	case core.EventInputRequest:
		fmt.Printf("[%04d] %s waits for input: %s\n", ev.Seq, ev.TaskID, ev.Title)
	case core.EventComplete:
		fmt.Printf("[%04d] complete (stopped=%t, %.1fs)\n", ev.Seq, ev.Stopped, ev.Duration)
	case core.EventError:
		fmt.Printf("[%04d] error: %s\n", ev.Seq, ev.Message)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a mission manifest and its task graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			mission, err := config.Load(args[0])
			if err != nil {
				return err
			}
			g, err := graph.Compile(mission.Tasks)
			if err != nil {
				return err
			}
			fmt.Printf("mission %q is valid: %d agents, %d tasks\n", mission.Name, len(mission.Agents), g.Len())
			return nil
		},
	}
}
