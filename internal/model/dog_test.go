package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDogInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   DogInput
		wantErr error
	}{
		{
			name:    "valid input",
			input:   DogInput{Name: "Rex", Breed: "Beagle"},
			wantErr: nil,
		},
		{
			name:    "valid input - no breed",
			input:   DogInput{Name: "Rex"},
			wantErr: nil,
		},
		{
			name:    "valid input - max name length",
			input:   DogInput{Name: strings.Repeat("a", MaxNameLength)},
			wantErr: nil,
		},
		{
			name:    "valid input - multibyte name at limit",
			input:   DogInput{Name: strings.Repeat("ż", MaxNameLength)},
			wantErr: nil,
		},
		{
			name:    "invalid - empty name",
			input:   DogInput{Name: ""},
			wantErr: ErrEmptyName,
		},
		{
			name:    "invalid - blank name",
			input:   DogInput{Name: "   \t"},
			wantErr: ErrEmptyName,
		},
		{
			name:    "invalid - name too long",
			input:   DogInput{Name: strings.Repeat("a", MaxNameLength+1)},
			wantErr: ErrNameTooLong,
		},
		{
			name:    "invalid - breed too long",
			input:   DogInput{Name: "Rex", Breed: strings.Repeat("b", MaxBreedLength+1)},
			wantErr: ErrBreedTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			err := tt.input.Validate()

			// Assert
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDogInput_Dog(t *testing.T) {
	tests := []struct {
		name      string
		input     DogInput
		imageURL  string
		wantBreed string
	}{
		{"breed kept", DogInput{Name: "Rex", Breed: "Beagle"}, "", "Beagle"},
		{"empty breed defaults", DogInput{Name: "Rex"}, "", DefaultBreed},
		{"blank breed defaults", DogInput{Name: "Rex", Breed: "  "}, "https://img/1.jpg", DefaultBreed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			dog := tt.input.Dog(tt.imageURL)

			// Assert
			if dog.Name != tt.input.Name {
				t.Errorf("Name = %q, want %q", dog.Name, tt.input.Name)
			}
			if dog.Breed != tt.wantBreed {
				t.Errorf("Breed = %q, want %q", dog.Breed, tt.wantBreed)
			}
			if dog.IsLiked {
				t.Error("new dog should not be liked")
			}
			if dog.ImageURL != tt.imageURL {
				t.Errorf("ImageURL = %q, want %q", dog.ImageURL, tt.imageURL)
			}
			if dog.HasImage() != (tt.imageURL != "") {
				t.Errorf("HasImage() = %v", dog.HasImage())
			}
		})
	}
}

func TestDogInput_Dog_PreservesNameCasing(t *testing.T) {
	// Arrange
	input := DogInput{Name: "  McFluffy "}

	// Act
	dog := input.Dog("")

	// Assert
	if dog.Name != "  McFluffy " {
		t.Errorf("Name = %q, want the name exactly as typed", dog.Name)
	}
}

func TestDog_JSONOmitsMissingImage(t *testing.T) {
	// Arrange
	dog := Dog{Name: "Rex", Breed: DefaultBreed}

	// Act
	data, err := json.Marshal(dog)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// Assert
	if strings.Contains(string(data), "image_url") {
		t.Errorf("image_url should be omitted, got %s", data)
	}
	if !strings.Contains(string(data), `"is_liked":false`) {
		t.Errorf("is_liked should always be present, got %s", data)
	}
}

func TestNewView(t *testing.T) {
	tests := []struct {
		name      string
		dogs      []Dog
		wantTotal int
		wantLiked int
	}{
		{"nil dogs", nil, 0, 0},
		{"no liked", []Dog{{Name: "Ann"}, {Name: "Bo"}}, 2, 0},
		{"mixed", []Dog{{Name: "Bo", IsLiked: true}, {Name: "Rex", IsLiked: true}, {Name: "Ann"}}, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			view := NewView("q", tt.dogs)

			// Assert
			if view.Dogs == nil {
				t.Error("Dogs should never be nil")
			}
			if view.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", view.Total, tt.wantTotal)
			}
			if view.Liked != tt.wantLiked {
				t.Errorf("Liked = %d, want %d", view.Liked, tt.wantLiked)
			}
			if view.Query != "q" {
				t.Errorf("Query = %q, want q", view.Query)
			}
		})
	}
}

func TestAPIResponse_Success(t *testing.T) {
	// Act
	resp := NewSuccessResponse(Dog{Name: "Rex"})

	// Assert
	if !resp.Success {
		t.Error("Success should be true")
	}
	if resp.Data.Name != "Rex" {
		t.Errorf("Data.Name = %q, want Rex", resp.Data.Name)
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty", resp.Error)
	}
}

func TestAPIResponse_Error(t *testing.T) {
	// Act
	resp := NewErrorResponse(409, "boom")

	// Assert
	if resp.Success {
		t.Error("Success should be false")
	}
	if resp.Code != 409 {
		t.Errorf("Code = %d, want 409", resp.Code)
	}
	if resp.Error != "boom" {
		t.Errorf("Error = %q, want boom", resp.Error)
	}
	if resp.Data != nil {
		t.Errorf("Data = %v, want nil", resp.Data)
	}
}

func TestNewViewMessage(t *testing.T) {
	// Arrange
	view := NewView("re", []Dog{{Name: "Rex"}})

	// Act
	msg := NewViewMessage(view)

	// Assert
	if msg.Type != WSMessageTypeView {
		t.Errorf("Type = %q, want %q", msg.Type, WSMessageTypeView)
	}
	if msg.Query != "re" {
		t.Errorf("Query = %q, want re", msg.Query)
	}
	if msg.View == nil || msg.View.Total != 1 {
		t.Errorf("View = %+v, want one dog", msg.View)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestNewErrorMessage(t *testing.T) {
	// Act
	msg := NewErrorMessage("bad frame")

	// Assert
	if msg.Type != WSMessageTypeError {
		t.Errorf("Type = %q, want %q", msg.Type, WSMessageTypeError)
	}
	if msg.Error != "bad frame" {
		t.Errorf("Error = %q, want bad frame", msg.Error)
	}
	if msg.View != nil {
		t.Error("View should be nil")
	}
}
