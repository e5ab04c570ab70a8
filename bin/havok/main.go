package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chaosworks/havok/pkg/config"
	"github.com/chaosworks/havok/pkg/engine"
	"github.com/chaosworks/havok/pkg/environment"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/store"
	"github.com/chaosworks/havok/pkg/strategy"
	"github.com/chaosworks/havok/pkg/telemetry"
	"github.com/chaosworks/havok/pkg/types"
)

// set at build time
var version = "dev"

func init() {
	// Log as JSON instead of the default ASCII formatter.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	root := &cobra.Command{
		Use:          "havok",
		Short:        "havok runs chaos experiments with a bounded blast radius and guaranteed cleanup",
		SilenceUsage: true,
	}
	root.AddCommand(runCommand(), validateCommand(), versionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCommand() *cobra.Command {
	var runFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment from a run file and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(runFile)
		},
	}
	cmd.Flags().StringVarP(&runFile, "file", "f", "run.yaml", "path of the run file")
	return cmd
}

func validateCommand() *cobra.Command {
	var runFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a run file without injecting any fault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateRunFile(runFile)
		},
	}
	cmd.Flags().StringVarP(&runFile, "file", "f", "run.yaml", "path of the run file")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("havok " + version)
		},
	}
}

func validateRunFile(path string) error {
	rf, err := config.Load(path)
	if err != nil {
		return err
	}
	observers, err := rf.BuildObservers()
	if err != nil {
		return err
	}

	details := environment.EngineDetails{}
	environment.GetENV(&details)

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewProcessSignalStrategy())
	registry.Register(strategy.NewCommandStrategy())

	eng := engine.New(details, store.NewMemStore(), registry, observers, engine.StaticTargets(rf.Targets))
	if err := eng.Validate(rf.Experiment); err != nil {
		return err
	}
	log.Infof("[Validate]: Run file %v is well formed, experiment %v targets %v candidate(s)", path, rf.Experiment.Name, len(rf.Targets))
	return nil
}

func runExperiment(path string) error {
	rf, err := config.Load(path)
	if err != nil {
		return err
	}
	observers, err := rf.BuildObservers()
	if err != nil {
		return err
	}

	details := environment.EngineDetails{}
	environment.GetENV(&details)

	ctx := context.Background()
	if details.OTELEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, details.OTELEndpoint)
		if err != nil {
			return err
		}
		defer shutdown(ctx)
	}

	if err := os.MkdirAll(details.DataDir, 0o750); err != nil {
		return err
	}
	st, err := store.NewBoltStore(details.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewProcessSignalStrategy())
	registry.Register(strategy.NewCommandStrategy())

	eng := engine.New(details, st, registry, observers, engine.StaticTargets(rf.Targets))
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()

	id, err := eng.Submit(rf.Experiment)
	if err != nil {
		return err
	}

	// an interrupt becomes an emergency stop, cleanup still runs to completion
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-signals
		if !ok {
			return
		}
		log.Warnf("Received %v, delivering emergency stop", sig)
		if err := eng.EmergencyStop(id); err != nil {
			log.Errorf("Unable to stop experiment %v, %v", id, err)
		}
	}()

	eng.Wait(id)
	signal.Stop(signals)
	close(signals)

	report, err := eng.Report(id)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if report.FinalState != types.StateCompleted {
		return fmt.Errorf("experiment finished %v", report.FinalState)
	}
	return nil
}
