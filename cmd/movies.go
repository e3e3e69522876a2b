package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/cinesage/core/dataset"
)

var (
	moviesDB       string
	moviesYear     string
	moviesSearch   string
	moviesGenre    string
	moviesPage     int
	moviesPageSize int
)

var moviesCmd = &cobra.Command{
	Use:   "movies",
	Short: "Browse the movie catalog",
	Long:  `List movies from the store with optional year, title, and genre filters.`,
	RunE:  runMovies,
}

func init() {
	rootCmd.AddCommand(moviesCmd)
	moviesCmd.Flags().StringVar(&moviesDB, "db", "movies.db", "Path to the sqlite movie store")
	moviesCmd.Flags().StringVar(&moviesYear, "year", "", "Filter by release year")
	moviesCmd.Flags().StringVar(&moviesSearch, "search", "", "Case-insensitive title substring")
	moviesCmd.Flags().StringVar(&moviesGenre, "genre", "", "Filter by genre token")
	moviesCmd.Flags().IntVar(&moviesPage, "page", 1, "Page number, 1-based")
	moviesCmd.Flags().IntVar(&moviesPageSize, "page-size", 20, "Movies per page")
}

func runMovies(cmd *cobra.Command, args []string) error {
	store, err := dataset.Open(moviesDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if moviesPage < 1 {
		moviesPage = 1
	}
	if moviesPageSize < 1 {
		moviesPageSize = 1
	}
	offset := (moviesPage - 1) * moviesPageSize

	movies, total, err := store.List(offset, moviesPageSize, dataset.ListFilter{
		Year:   moviesYear,
		Search: moviesSearch,
		Genre:  moviesGenre,
	})
	if err != nil {
		return err
	}

	pages := (total + moviesPageSize - 1) / moviesPageSize
	for _, m := range movies {
		fmt.Printf("%6d  %-60s %s  %s\n", m.ID, m.Title, m.Year, strings.Join(m.Genres, "|"))
	}
	fmt.Printf("page %d of %d (%d movies)\n", moviesPage, pages, total)
	return nil
}
