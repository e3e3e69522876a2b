package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adalundhe/cinesage/core/dataset"
)

var (
	ingestMovies  string
	ingestRatings string
	ingestDB      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load MovieLens CSV files into the movie store",
	Long:  `Parse movies.csv and ratings.csv and replace the contents of the sqlite movie store.`,
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestMovies, "movies", "", "Path to movies.csv")
	ingestCmd.Flags().StringVar(&ingestRatings, "ratings", "", "Path to ratings.csv")
	ingestCmd.Flags().StringVar(&ingestDB, "db", "movies.db", "Path to the sqlite movie store")
	ingestCmd.MarkFlagRequired("movies")
	ingestCmd.MarkFlagRequired("ratings")
}

func runIngest(cmd *cobra.Command, args []string) error {
	movies, err := dataset.LoadMovies(ingestMovies)
	if err != nil {
		return err
	}
	ratings, err := dataset.LoadRatings(ingestRatings)
	if err != nil {
		return err
	}

	store, err := dataset.Open(ingestDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.IngestMovies(movies); err != nil {
		return err
	}
	if err := store.IngestRatings(ratings); err != nil {
		return err
	}

	slog.Info("ingest complete", "db", ingestDB, "movies", len(movies), "ratings", len(ratings))
	fmt.Printf("ingested %d movies and %d ratings into %s\n", len(movies), len(ratings), ingestDB)
	return nil
}
