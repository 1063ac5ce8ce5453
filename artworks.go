package gallerykit

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// UnknownArtist is stored when the artist has no display name.
const UnknownArtist = "Unknown Artist"

// MaxArtworkPrice is the first price the artworks.price column cannot hold.
const MaxArtworkPrice = 1e10

// ArtworkCategories lists the categories offered by the upload form.
var ArtworkCategories = []string{"Painting", "Sculpture", "Photography", "Digital Art", "Mixed Media"}

// ArtworkDraft is the artist's input for a new artwork. Numeric fields are
// kept as the raw form strings.
type ArtworkDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Medium      string `json:"medium"`
	Width       string `json:"width"`
	Height      string `json:"height"`
	Depth       string `json:"depth"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url"`
	Available   bool   `json:"is_available"`

	// SaveAsDraft stores the artwork hidden from the gallery.
	SaveAsDraft bool `json:"save_as_draft"`
}

// Dimensions joins the non-blank sizes as "W x H x D cm".
// It returns nil when every size is blank.
func (d ArtworkDraft) Dimensions() *string {
	var parts []string
	for _, p := range []string{d.Width, d.Height, d.Depth} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	dims := strings.Join(parts, " x ") + " cm"
	return &dims
}

func (d ArtworkDraft) validate() (*float64, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, NewError(ErrValidation, "title is required")
	}
	category := strings.TrimSpace(d.Category)
	if category == "" {
		return nil, NewError(ErrValidation, "category is required")
	}
	if !slices.Contains(ArtworkCategories, category) {
		return nil, NewError(ErrValidation, fmt.Sprintf("unknown category %q", category))
	}
	if strings.TrimSpace(d.Medium) == "" {
		return nil, NewError(ErrValidation, "medium is required")
	}

	price := strings.TrimSpace(d.Price)
	if price == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return nil, NewError(ErrValidation, fmt.Sprintf("invalid price %q", d.Price))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, NewError(ErrValidation, fmt.Sprintf("invalid price %q", d.Price))
	}
	if v < 0 {
		return nil, NewError(ErrValidation, "price must not be negative")
	}
	if v >= MaxArtworkPrice {
		return nil, NewError(ErrValidation, "price is too large")
	}
	return &v, nil
}

// CreateArtwork stores a new artwork for the session's subject, who needs
// the artworks.create feature. Drafts are never listed as available.
func (s *Service) CreateArtwork(ctx context.Context, session *Session, draft ArtworkDraft) (*Artwork, error) {
	price, err := draft.validate()
	if err != nil {
		return nil, err
	}
	if session == nil || session.IsAnonymous() {
		return nil, NewError(ErrUnauthorized, "sign in to add artworks")
	}
	if !session.Allows(ctx, FeatureArtworksCreate) {
		return nil, NewError(ErrUnauthorized, "only artists can add artworks").
			WithActor(session.SubjectID()).
			WithRole(RoleArtist)
	}

	artistName := UnknownArtist
	profiles, err := s.store.Profiles(ctx, []string{session.SubjectID()})
	if err != nil {
		return nil, dependencyError(err, "load artist profile")
	}
	if len(profiles) > 0 && strings.TrimSpace(profiles[0].DisplayName) != "" {
		artistName = strings.TrimSpace(profiles[0].DisplayName)
	}

	artwork := &Artwork{
		ID:          s.newID(),
		ArtistID:    session.SubjectID(),
		ArtistName:  artistName,
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		Category:    strings.TrimSpace(draft.Category),
		Medium:      strings.TrimSpace(draft.Medium),
		Dimensions:  draft.Dimensions(),
		Price:       price,
		Available:   draft.Available && !draft.SaveAsDraft,
		CreatedAt:   s.now(),
	}
	if url := strings.TrimSpace(draft.ImageURL); url != "" {
		artwork.ImageURL = &url
	}

	if err := s.store.CreateArtwork(ctx, artwork); err != nil {
		return nil, dependencyError(err, "create artwork")
	}

	s.logger.WithFields(log.Fields{
		"subject_id": artwork.ArtistID,
		"artwork_id": artwork.ID,
		"draft":      draft.SaveAsDraft,
	}).Info("artwork created")
	return artwork, nil
}
