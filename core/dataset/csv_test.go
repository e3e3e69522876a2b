package dataset

import (
	"strings"
	"testing"
)

func TestReadMovies(t *testing.T) {
	in := strings.NewReader(`movieId,title,genres
1,Toy Story (1995),Adventure|Animation|Children|Comedy|Fantasy
2,Jumanji (1995),Adventure|Children|Fantasy
118700,Selma (2014),Drama
`)
	movies, err := ReadMovies(in)
	if err != nil {
		t.Fatalf("ReadMovies: %v", err)
	}
	if len(movies) != 3 {
		t.Fatalf("got %d movies, want 3", len(movies))
	}

	toy := movies[0]
	if toy.ID != 1 || toy.Title != "Toy Story (1995)" || toy.Year != "1995" {
		t.Errorf("parsed %+v", toy)
	}
	if len(toy.Genres) != 5 || toy.Genres[0] != "Adventure" || toy.Genres[4] != "Fantasy" {
		t.Errorf("genres %v", toy.Genres)
	}
	if movies[2].Year != "2014" {
		t.Errorf("year %q, want 2014", movies[2].Year)
	}
}

func TestReadMoviesQuotedTitle(t *testing.T) {
	in := strings.NewReader(`movieId,title,genres
11,"American President, The (1995)",Comedy|Drama|Romance
`)
	movies, err := ReadMovies(in)
	if err != nil {
		t.Fatalf("ReadMovies: %v", err)
	}
	if movies[0].Title != "American President, The (1995)" {
		t.Errorf("title %q", movies[0].Title)
	}
}

func TestReadMoviesNoYear(t *testing.T) {
	in := strings.NewReader(`movieId,title,genres
7,Untitled Project,Drama
`)
	movies, err := ReadMovies(in)
	if err != nil {
		t.Fatalf("ReadMovies: %v", err)
	}
	if movies[0].Year != "" {
		t.Errorf("year %q, want empty", movies[0].Year)
	}
}

func TestReadMoviesBadID(t *testing.T) {
	in := strings.NewReader(`movieId,title,genres
abc,Broken,Drama
`)
	if _, err := ReadMovies(in); err == nil {
		t.Fatal("non-numeric movie id must fail")
	}
}

func TestReadRatings(t *testing.T) {
	in := strings.NewReader(`userId,movieId,rating,timestamp
1,31,2.5,1260759144
7,1029,3.0,1260759179
`)
	ratings, err := ReadRatings(in)
	if err != nil {
		t.Fatalf("ReadRatings: %v", err)
	}
	if len(ratings) != 2 {
		t.Fatalf("got %d ratings, want 2", len(ratings))
	}
	r := ratings[0]
	if r.UserID != 1 || r.MovieID != 31 || r.Rating != 2.5 || r.Timestamp != 1260759144 {
		t.Errorf("parsed %+v", r)
	}
}

func TestSplitGenres(t *testing.T) {
	got := SplitGenres("Action|Crime|Thriller")
	if len(got) != 3 || got[0] != "Action" || got[2] != "Thriller" {
		t.Errorf("got %v", got)
	}
	if got := SplitGenres(""); got != nil {
		t.Errorf("empty input gave %v", got)
	}
	if got := SplitGenres("(no genres listed)"); len(got) != 1 {
		t.Errorf("placeholder token should survive, got %v", got)
	}
}
