package domain

import (
	"strings"
	"time"
)

// Gender is the target audience enum returned by attribute enrichment.
type Gender string

// Genders.
const (
	GenderUnknown Gender = ""
	GenderWomen   Gender = "women"
	GenderMen     Gender = "men"
	GenderUnisex  Gender = "unisex"
	GenderKids    Gender = "kids"
)

// Season is the season enum returned by attribute enrichment.
type Season string

// Seasons.
const (
	SeasonUnknown   Season = ""
	SeasonSummer    Season = "summer"
	SeasonWinter    Season = "winter"
	SeasonDemi      Season = "demi"
	SeasonAllSeason Season = "all_season"
)

// ParseGender normalizes an enrichment value; unknown values map to GenderUnknown.
func ParseGender(s string) Gender {
	switch g := Gender(s); g {
	case GenderWomen, GenderMen, GenderUnisex, GenderKids:
		return g
	default:
		return GenderUnknown
	}
}

// ParseSeason normalizes an enrichment value; unknown values map to SeasonUnknown.
func ParseSeason(s string) Season {
	switch v := Season(s); v {
	case SeasonSummer, SeasonWinter, SeasonDemi, SeasonAllSeason:
		return v
	default:
		return SeasonUnknown
	}
}

// Required product fields reported by MissingRequired.
const (
	FieldPrice  = "price"
	FieldSizes  = "sizes"
	FieldImages = "images"
)

// Product is the durable output of the pipeline. It starts as an inactive draft.
type Product struct {
	ID               string
	GroupID          string
	Source           SourceFamily
	ChatID           string
	SenderID         string
	SourceMessageIDs []string
	Fingerprint      string
	Name             string
	Description      string
	Price            float64
	Currency         string
	Sizes            []string
	Material         string
	Gender           Gender
	Season           Season
	CategoryID       string
	Images           []ProductImage
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProductImage is a materialized image of a product.
type ProductImage struct {
	ID              string
	ProductID       string
	SourceMessageID string
	URL             string
	Color           string
	Position        int
}

// MissingRequired lists required fields that are absent: price, sizes, images.
func (p Product) MissingRequired() []string {
	return missingRequired(p.Price, p.Sizes, len(p.Images))
}

// MissingTextFields lists the required fields text enrichment must supply.
func (p Product) MissingTextFields() []string {
	var missing []string

	if p.Price <= 0 {
		missing = append(missing, FieldPrice)
	}

	if !hasNonBlank(p.Sizes) {
		missing = append(missing, FieldSizes)
	}

	return missing
}

func missingRequired(price float64, sizes []string, images int) []string {
	missing := Product{Price: price, Sizes: sizes}.MissingTextFields()

	if images == 0 {
		missing = append(missing, FieldImages)
	}

	return missing
}

func hasNonBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}

	return false
}

// NewDraft builds an inactive product for group g.
func NewDraft(id string, g MessageGroup) Product {
	ids := SortedIDs(g.MessageIDs())

	return Product{
		ID:               id,
		GroupID:          g.ID,
		Source:           g.Source,
		ChatID:           g.ChatID,
		SenderID:         g.SenderID,
		SourceMessageIDs: ids,
		Fingerprint:      Fingerprint(ids),
	}
}

// Category is a catalog category known to the store.
type Category struct {
	ID       string
	Slug     string
	Name     string
	IsActive bool
}
