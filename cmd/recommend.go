package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/cinesage/core/inference"
)

var (
	recommendCkpt    string
	recommendDB      string
	recommendMovies  string
	recommendRatings string
	recommendUser    int64
	recommendKnown   string
	recommendTopK    int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank unseen movies for a user",
	Long: `Load a checkpoint, rebuild the graph from the same tables it was trained
on, and print the top-K movies for a user, excluding the movies they
already know.`,
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().StringVar(&recommendCkpt, "ckpt", "model.ckpt", "Path to the trained checkpoint")
	recommendCmd.Flags().StringVar(&recommendDB, "db", "", "Path to the sqlite movie store")
	recommendCmd.Flags().StringVar(&recommendMovies, "movies", "", "Path to movies.csv")
	recommendCmd.Flags().StringVar(&recommendRatings, "ratings", "", "Path to ratings.csv")
	recommendCmd.Flags().Int64Var(&recommendUser, "user", 0, "User id to recommend for")
	recommendCmd.Flags().StringVar(&recommendKnown, "known", "", "Comma-separated movie ids to exclude")
	recommendCmd.Flags().IntVar(&recommendTopK, "top-k", 5, "Number of recommendations")
	recommendCmd.MarkFlagRequired("user")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	movies, ratings, err := loadTables(recommendDB, recommendMovies, recommendRatings)
	if err != nil {
		return err
	}

	known, err := parseKnown(recommendKnown)
	if err != nil {
		return err
	}

	engine, err := inference.New(recommendCkpt, movies, ratings)
	if err != nil {
		return err
	}

	recs, err := engine.Recommend(recommendUser, known, recommendTopK)
	if err != nil {
		return err
	}

	titles := make(map[int64]string, len(movies))
	for _, m := range movies {
		titles[m.ID] = m.Title
	}
	for i, rec := range recs {
		fmt.Printf("%2d. %-60s movie=%d score=%.4f\n", i+1, titles[rec.MovieID], rec.MovieID, rec.Score)
	}
	return nil
}

func parseKnown(s string) (map[int64]struct{}, error) {
	known := make(map[int64]struct{})
	if s == "" {
		return known, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad movie id %q in --known: %w", part, err)
		}
		known[id] = struct{}{}
	}
	return known, nil
}
