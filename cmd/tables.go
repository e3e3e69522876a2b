package cmd

import (
	"fmt"

	"github.com/adalundhe/cinesage/core/dataset"
)

// loadTables resolves the catalog and ratings from either the sqlite
// store or raw CSV files, preferring the store when both are given.
func loadTables(dbPath, moviesPath, ratingsPath string) ([]dataset.Movie, []dataset.Rating, error) {
	if dbPath != "" {
		store, err := dataset.Open(dbPath)
		if err != nil {
			return nil, nil, err
		}
		defer store.Close()

		movies, err := store.Movies()
		if err != nil {
			return nil, nil, err
		}
		ratings, err := store.Ratings()
		if err != nil {
			return nil, nil, err
		}
		return movies, ratings, nil
	}

	if moviesPath == "" || ratingsPath == "" {
		return nil, nil, fmt.Errorf("either --db or both --movies and --ratings are required")
	}
	movies, err := dataset.LoadMovies(moviesPath)
	if err != nil {
		return nil, nil, err
	}
	ratings, err := dataset.LoadRatings(ratingsPath)
	if err != nil {
		return nil, nil, err
	}
	return movies, ratings, nil
}
