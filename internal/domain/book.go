package domain

import "time"

// Book is a catalog entry with its copy counts.
// 0 <= AvailableCopies <= TotalCopies holds for every stored book.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	PublicationYear int       `json:"publication_year"`
	Genre           string    `json:"genre"`
	Publisher       string    `json:"publisher"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// OnLoan returns the number of copies currently lent out.
func (b Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// BookPatch carries the fields of a book update; nil fields are left unchanged.
type BookPatch struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	ISBN            *string `json:"isbn"`
	PublicationYear *int    `json:"publication_year"`
	Genre           *string `json:"genre"`
	Publisher       *string `json:"publisher"`
	TotalCopies     *int    `json:"total_copies"`
}

// BookQuery selects books by case-insensitive substring on the non-empty
// fields.
type BookQuery struct {
	Title  string
	Author string
	Genre  string
	Limit  int
}

// BookPage is one page of the catalog listing.
type BookPage struct {
	Books      []Book `json:"books"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}
