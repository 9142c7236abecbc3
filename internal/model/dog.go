// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Validation errors for dog input.
var (
	ErrEmptyName    = errors.New("name cannot be empty")
	ErrNameTooLong  = errors.New("name cannot exceed 100 characters")
	ErrBreedTooLong = errors.New("breed cannot exceed 100 characters")
)

// Validation constants.
const (
	MaxNameLength  = 100
	MaxBreedLength = 100

	// DefaultBreed is shown when no breed was given.
	DefaultBreed = "Unknown"
)

// Dog is a single roster entry. Name is immutable once the dog is added.
type Dog struct {
	Name     string `json:"name"`
	Breed    string `json:"breed"`
	IsLiked  bool   `json:"is_liked"`
	ImageURL string `json:"image_url,omitempty"`
}

// HasImage reports whether a photo was attached when the dog was composed.
func (d Dog) HasImage() bool {
	return d.ImageURL != ""
}

// DogInput is the user-supplied part of a new dog.
type DogInput struct {
	Name  string `json:"name"`
	Breed string `json:"breed,omitempty"`
}

// Validate checks if the DogInput has valid field values.
// A blank name is rejected; the name is otherwise kept exactly as typed.
func (in *DogInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}

	if utf8.RuneCountInString(in.Name) > MaxNameLength {
		return ErrNameTooLong
	}

	if utf8.RuneCountInString(in.Breed) > MaxBreedLength {
		return ErrBreedTooLong
	}

	return nil
}

// Dog builds a new, unliked Dog from the input and an optional image URL.
func (in *DogInput) Dog(imageURL string) Dog {
	breed := in.Breed
	if strings.TrimSpace(breed) == "" {
		breed = DefaultBreed
	}

	return Dog{
		Name:     in.Name,
		Breed:    breed,
		ImageURL: imageURL,
	}
}

// View is the derived, ordered projection of a roster for one query.
type View struct {
	Query string `json:"query"`
	Dogs  []Dog  `json:"dogs"`
	Total int    `json:"total"`
	Liked int    `json:"liked"`
}

// NewView wraps an already ordered dog list with its counters.
func NewView(query string, dogs []Dog) View {
	if dogs == nil {
		dogs = []Dog{}
	}

	liked := 0
	for _, d := range dogs {
		if d.IsLiked {
			liked++
		}
	}

	return View{
		Query: query,
		Dogs:  dogs,
		Total: len(dogs),
		Liked: liked,
	}
}
