package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var yearSuffix = regexp.MustCompile(`\((\d{4})\)\s*$`)

// LoadMovies reads a MovieLens-format movies.csv: header row, then
// movieId,title,genres with pipe-separated genres. The release year is
// parsed from the trailing "(YYYY)" in the title when present.
func LoadMovies(path string) ([]Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open movies csv: %w", err)
	}
	defer f.Close()
	return ReadMovies(f)
}

// ReadMovies parses catalog rows from r. See LoadMovies for the format.
func ReadMovies(r io.Reader) ([]Movie, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read movies header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("movies csv: expected movieId,title,genres header, got %d columns", len(header))
	}

	var movies []Movie
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read movies row %d: %w", line, err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("movies row %d: expected 3 columns, got %d", line, len(rec))
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("movies row %d: bad movieId %q: %w", line, rec[0], err)
		}
		title := strings.TrimSpace(rec[1])
		year := ""
		if m := yearSuffix.FindStringSubmatch(title); m != nil {
			year = m[1]
		}
		movies = append(movies, Movie{
			ID:     id,
			Title:  title,
			Year:   year,
			Genres: SplitGenres(rec[2]),
		})
	}
	return movies, nil
}

// SplitGenres splits a pipe-separated genre string into tokens, dropping
// empties. The MovieLens "(no genres listed)" placeholder is kept as a
// token so that genre vocabularies stay stable across reloads.
func SplitGenres(s string) []string {
	var out []string
	for _, g := range strings.Split(s, "|") {
		g = strings.TrimSpace(g)
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}

// LoadRatings reads a MovieLens-format ratings.csv: header row, then
// userId,movieId,rating,timestamp.
func LoadRatings(path string) ([]Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ratings csv: %w", err)
	}
	defer f.Close()
	return ReadRatings(f)
}

// ReadRatings parses rating rows from r. See LoadRatings for the format.
func ReadRatings(r io.Reader) ([]Rating, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read ratings header: %w", err)
	}
	if len(header) < 4 {
		return nil, fmt.Errorf("ratings csv: expected userId,movieId,rating,timestamp header, got %d columns", len(header))
	}

	var ratings []Rating
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ratings row %d: %w", line, err)
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("ratings row %d: expected 4 columns, got %d", line, len(rec))
		}
		userID, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ratings row %d: bad userId %q: %w", line, rec[0], err)
		}
		movieID, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ratings row %d: bad movieId %q: %w", line, rec[1], err)
		}
		val, err := strconv.ParseFloat(rec[2], 32)
		if err != nil {
			return nil, fmt.Errorf("ratings row %d: bad rating %q: %w", line, rec[2], err)
		}
		ts, err := strconv.ParseInt(rec[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ratings row %d: bad timestamp %q: %w", line, rec[3], err)
		}
		ratings = append(ratings, Rating{
			UserID:    userID,
			MovieID:   movieID,
			Rating:    float32(val),
			Timestamp: ts,
		})
	}
	return ratings, nil
}
