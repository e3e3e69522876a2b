package dataset

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrMovieNotFound is returned when a lookup names a movie id absent
// from the store.
var ErrMovieNotFound = errors.New("movie not found")

// Store is the sqlite-backed movie and rating table. It exists for the
// catalog-browsing surface (pagination, year filter, title search,
// posters); the embedding core consumes the plain slices from Movies and
// Ratings and never touches the database directly.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// IngestMovies replaces the movie table with the given catalog,
// preserving catalog order in the seq column.
func (s *Store) IngestMovies(movies []Movie) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ingest movies: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM movies`); err != nil {
		return fmt.Errorf("clear movies: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO movies (id, seq, title, year, genres, imdb_id, tmdb_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare movie insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range movies {
		if _, err := stmt.Exec(m.ID, i, m.Title, m.Year, strings.Join(m.Genres, "|"), m.ImdbID, m.TmdbID); err != nil {
			return fmt.Errorf("insert movie %d: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// IngestRatings replaces the rating table with the given events.
func (s *Store) IngestRatings(ratings []Rating) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ingest ratings: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ratings`); err != nil {
		return fmt.Errorf("clear ratings: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO ratings (user_id, movie_id, rating, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rating insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range ratings {
		if _, err := stmt.Exec(r.UserID, r.MovieID, r.Rating, r.Timestamp); err != nil {
			return fmt.Errorf("insert rating user=%d movie=%d: %w", r.UserID, r.MovieID, err)
		}
	}
	return tx.Commit()
}

// SetPoster stores the poster image bytes for a movie.
func (s *Store) SetPoster(movieID int64, blob []byte) error {
	res, err := s.db.Exec(`UPDATE movies SET poster = ? WHERE id = ?`, blob, movieID)
	if err != nil {
		return fmt.Errorf("set poster for movie %d: %w", movieID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set poster for movie %d: %w", movieID, err)
	}
	if n == 0 {
		return fmt.Errorf("set poster for movie %d: %w", movieID, ErrMovieNotFound)
	}
	return nil
}

// Poster returns the stored poster bytes for a movie, or
// ErrMovieNotFound when the movie has no row or no poster.
func (s *Store) Poster(movieID int64) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT poster FROM movies WHERE id = ?`, movieID).Scan(&blob)
	if err == sql.ErrNoRows || (err == nil && len(blob) == 0) {
		return nil, fmt.Errorf("poster for movie %d: %w", movieID, ErrMovieNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("poster for movie %d: %w", movieID, err)
	}
	return blob, nil
}

// Get returns a single movie by id.
func (s *Store) Get(movieID int64) (Movie, error) {
	row := s.db.QueryRow(`SELECT id, title, year, genres, imdb_id, tmdb_id FROM movies WHERE id = ?`, movieID)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return Movie{}, fmt.Errorf("movie %d: %w", movieID, ErrMovieNotFound)
	}
	if err != nil {
		return Movie{}, fmt.Errorf("movie %d: %w", movieID, err)
	}
	return m, nil
}

// ListFilter narrows a List call. Zero values mean no filtering.
type ListFilter struct {
	Year   string
	Search string // case-insensitive title substring
	Genre  string // exact genre token
}

// List returns a page of movies in catalog order along with the total
// number of rows matching the filter.
func (s *Store) List(offset, limit int, filter ListFilter) ([]Movie, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM movies`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movies: %w", err)
	}

	query := `SELECT id, title, year, genres, imdb_id, tmdb_id FROM movies` + where + ` ORDER BY seq LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list movies: %w", err)
	}
	return movies, total, nil
}

func filterClause(filter ListFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Year != "" {
		conds = append(conds, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Search != "" {
		conds = append(conds, "title LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Genre != "" {
		// Genres are pipe-joined; wrap both sides so a token only
		// matches whole genre names.
		conds = append(conds, "('|' || genres || '|') LIKE ?")
		args = append(args, "%|"+filter.Genre+"|%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Movies returns the full catalog in catalog order.
func (s *Store) Movies() ([]Movie, error) {
	rows, err := s.db.Query(`SELECT id, title, year, genres, imdb_id, tmdb_id FROM movies ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load movies: %w", err)
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load movies: %w", err)
	}
	return movies, nil
}

// Ratings returns all rating events in insertion order.
func (s *Store) Ratings() ([]Rating, error) {
	rows, err := s.db.Query(`SELECT user_id, movie_id, rating, timestamp FROM ratings ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	defer rows.Close()

	var ratings []Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.UserID, &r.MovieID, &r.Rating, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	return ratings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (Movie, error) {
	var m Movie
	var genres string
	if err := row.Scan(&m.ID, &m.Title, &m.Year, &genres, &m.ImdbID, &m.TmdbID); err != nil {
		return Movie{}, err
	}
	m.Genres = SplitGenres(genres)
	return m, nil
}
