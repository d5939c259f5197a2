// Command harvest runs a fleet of collection workers against the
// cartpole environment with an in-process consumer, logging every
// emitted batch. It exists to exercise a deployment end to end; real
// deployments embed the worker packages next to their own learner.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	G "gorgonia.org/gorgonia"

	"github.com/offpolicy/harvest/comm"
	"github.com/offpolicy/harvest/comm/pipe"
	"github.com/offpolicy/harvest/environment/cartpole"
	"github.com/offpolicy/harvest/network"
	"github.com/offpolicy/harvest/policy"
	"github.com/offpolicy/harvest/priority"
	"github.com/offpolicy/harvest/worker"
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Distributed off-policy experience collection",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a worker fleet with an in-process consumer",
	RunE:  run,
}

func init() {
	flags := runCmd.Flags()
	flags.Int("workers", 2, "number of collection workers")
	flags.Int("nstep", 3, "n-step window size (1 disables folding)")
	flags.Float64("gamma", 0.99, "discount factor")
	flags.Float64("max-epsilon", 1.0, "initial epsilon")
	flags.Float64("min-epsilon", 0.01, "epsilon floor")
	flags.Float64("epsilon-decay", 0.0001, "linear epsilon decay per step")
	flags.Float64("per-eps", 1e-6, "priority floor")
	flags.Int("buffer-size", 128, "transitions collected per cycle")
	flags.IntSlice("hidden", []int{64, 64}, "hidden layer sizes")
	flags.String("log-level", "info", "logrus level")

	viper.BindPFlags(flags)
	viper.SetEnvPrefix("harvest")
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	logger.SetLevel(level)

	config := worker.Config{
		NStep:              viper.GetInt("nstep"),
		Gamma:              viper.GetFloat64("gamma"),
		MaxEpsilon:         viper.GetFloat64("max-epsilon"),
		MinEpsilon:         viper.GetFloat64("min-epsilon"),
		EpsilonDecay:       viper.GetFloat64("epsilon-decay"),
		PerEps:             viper.GetFloat64("per-eps"),
		LocalBufferMaxSize: viper.GetInt("buffer-size"),
		Device:             "cpu",
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	numWorkers := viper.GetInt("workers")
	if numWorkers < 1 {
		return fmt.Errorf("run: need at least one worker \n\thave(%v)",
			numWorkers)
	}
	hidden := viper.GetIntSlice("hidden")

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	intake, err := pipe.New(numWorkers)
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	broadcaster, err := pipe.NewBroadcaster(numWorkers)
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}

	// The learner stub owns the canonical parameter set. It never
	// trains; it rebroadcasts after every intake so that the
	// synchronization path is exercised.
	obsSize := cartpole.ObservationDims
	numActions := cartpole.MaxDiscreteAction - cartpole.MinDiscreteAction + 1
	learnerNet, err := network.NewQMLP(obsSize, numActions, hidden,
		G.GlorotU(1.0))
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	canonical := learnerNet.Parameters()

	var wg sync.WaitGroup
	for rank := 0; rank < numWorkers; rank++ {
		net, err := network.NewQMLP(obsSize, numActions, hidden,
			G.GlorotU(1.0))
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		if err := net.SetParameters(canonical); err != nil {
			return fmt.Errorf("run: %v", err)
		}

		w, err := worker.NewDQN(rank, config, cartpole.New(uint64(rank)),
			net, priority.QLoss, intake, broadcaster.Mailbox(rank), logger)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("worker terminated")
				stop()
			}
		}()
	}

	go consume(ctx, logger, intake.Emissions(), broadcaster, canonical)

	wg.Wait()
	return nil
}

// consume drains worker emissions, logging batch statistics, and
// rebroadcasts the canonical parameters after every batch
func consume(ctx context.Context, logger *logrus.Logger,
	emissions <-chan comm.Emission, broadcaster *pipe.Broadcaster,
	canonical []policy.Tensor) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-emissions:
			maxPriority := e.Priorities[0]
			for _, p := range e.Priorities[1:] {
				if p > maxPriority {
					maxPriority = p
				}
			}

			logger.WithFields(logrus.Fields{
				"rank":         e.Rank,
				"size":         e.Batch.N,
				"max_priority": maxPriority,
			}).Info("received batch")

			broadcaster.Publish(canonical)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
