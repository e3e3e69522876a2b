package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adalundhe/cinesage/core/checkpoint"
	"github.com/adalundhe/cinesage/core/graph"
	"github.com/adalundhe/cinesage/core/trainer"
)

var (
	trainConfig  string
	trainDB      string
	trainMovies  string
	trainRatings string
	trainOut     string
	trainEpochs  int
	trainSeed    int64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the embedding model and write a checkpoint",
	Long: `Build the interaction graph from the catalog and rating tables, run the
minibatched link-prediction training loop, and persist the final-epoch
parameters as a checkpoint.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVar(&trainConfig, "config", "", "Path to cinesage.yaml")
	trainCmd.Flags().StringVar(&trainDB, "db", "", "Path to the sqlite movie store")
	trainCmd.Flags().StringVar(&trainMovies, "movies", "", "Path to movies.csv")
	trainCmd.Flags().StringVar(&trainRatings, "ratings", "", "Path to ratings.csv")
	trainCmd.Flags().StringVar(&trainOut, "out", "", "Checkpoint output path (default model.ckpt)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "Override configured epoch count")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "Override configured random seed")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(trainConfig)
	if err != nil {
		return err
	}

	dbPath := firstNonEmpty(trainDB, cfg.Data.DB)
	moviesPath := firstNonEmpty(trainMovies, cfg.Data.Movies)
	ratingsPath := firstNonEmpty(trainRatings, cfg.Data.Ratings)
	outPath := firstNonEmpty(trainOut, cfg.Checkpoint, "model.ckpt")

	movies, ratings, err := loadTables(dbPath, moviesPath, ratingsPath)
	if err != nil {
		return err
	}

	g, mapping, err := graph.Build(movies, ratings, graph.Config{})
	if err != nil {
		return err
	}

	hp := cfg.hyperparameters()
	if trainEpochs > 0 {
		hp.Epochs = trainEpochs
	}
	if trainSeed != 0 {
		hp.Seed = trainSeed
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ckpt, stats, err := trainer.Train(ctx, g, mapping, hp, slog.Default())
	if err != nil {
		return err
	}
	if err := checkpoint.Save(ckpt, outPath); err != nil {
		return err
	}

	last := stats[len(stats)-1]
	fmt.Printf("run %s: %d epochs, final train loss %.4f, val loss %.4f, val accuracy %.4f\n",
		ckpt.RunID, len(stats), last.TrainLoss, last.ValLoss, last.ValAccuracy)
	fmt.Printf("checkpoint written to %s\n", outPath)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
