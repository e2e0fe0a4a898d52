package localgraph

import (
	"context"
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
)

// Loader names registered by Fixtures.Loaders.
const (
	MeLoader               = "me"
	ArtworkLoader          = "artwork"
	ArtistLoader           = "artist"
	ArtworksByArtistLoader = "artworksByArtist"
	SaleArtworkLoader      = "saleArtwork"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// ErrNotFound is wrapped by loaders when a key has no visible record.
var ErrNotFound = errors.New("not found")

type User struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type Artist struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Artwork struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	ArtistID  string `yaml:"artist_id"`
	Published bool   `yaml:"published"`
}

type SaleArtwork struct {
	ID         string `yaml:"id"`
	ArtworkID  string `yaml:"artwork_id"`
	LotLabel   string `yaml:"lot_label"`
	CurrentBid string `yaml:"current_bid"`
	Published  bool   `yaml:"published"`
}

// Fixtures is the in-memory data set behind the local graph.
type Fixtures struct {
	Users        []User        `yaml:"users"`
	Artists      []Artist      `yaml:"artists"`
	Artworks     []Artwork     `yaml:"artworks"`
	SaleArtworks []SaleArtwork `yaml:"sale_artworks"`
}

// DefaultFixtures returns the fixtures shipped with the binary.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixtures %s", path)
	}
	fixtures, err := ParseFixtures(data)
	if err != nil {
		return nil, errors.Wrapf(err, "fixtures %s", path)
	}
	return fixtures, nil
}

func ParseFixtures(data []byte) (*Fixtures, error) {
	fixtures := &Fixtures{}
	if err := yaml.UnmarshalStrict(data, fixtures); err != nil {
		return nil, errors.Wrap(err, "parse fixtures")
	}
	return fixtures, nil
}

// Loaders returns fresh loaders over f. Values are plain maps carrying a
// __typename so abstract fields resolve without a type resolver.
func (f *Fixtures) Loaders() requestcontext.Loaders {
	return requestcontext.Loaders{
		MeLoader: func(ctx context.Context, key string) (interface{}, error) {
			for _, user := range f.Users {
				if user.ID == key {
					return userObject(user), nil
				}
			}
			return nil, errors.Wrapf(ErrNotFound, "user %s", key)
		},
		ArtworkLoader: func(ctx context.Context, key string) (interface{}, error) {
			for _, artwork := range f.Artworks {
				if artwork.ID == key {
					return artworkObject(artwork), nil
				}
			}
			return nil, errors.Wrapf(ErrNotFound, "artwork %s", key)
		},
		ArtistLoader: func(ctx context.Context, key string) (interface{}, error) {
			for _, artist := range f.Artists {
				if artist.ID == key {
					return artistObject(artist), nil
				}
			}
			return nil, errors.Wrapf(ErrNotFound, "artist %s", key)
		},
		ArtworksByArtistLoader: func(ctx context.Context, key string) (interface{}, error) {
			out := []interface{}{}
			for _, artwork := range f.Artworks {
				if artwork.ArtistID == key && artwork.Published {
					out = append(out, artworkObject(artwork))
				}
			}
			return out, nil
		},
		SaleArtworkLoader: func(ctx context.Context, key string) (interface{}, error) {
			for _, saleArtwork := range f.SaleArtworks {
				if saleArtwork.ID != key {
					continue
				}
				if !saleArtwork.Published {
					return nil, errors.Wrapf(ErrNotFound, "sale artwork %s is not published", key)
				}
				return saleArtworkObject(saleArtwork), nil
			}
			return nil, errors.Wrapf(ErrNotFound, "sale artwork %s", key)
		},
	}
}

func userObject(user User) map[string]interface{} {
	return map[string]interface{}{
		"__typename": "Me",
		"id":         user.ID,
		"internalID": user.ID,
		"name":       user.Name,
		"email":      user.Email,
	}
}

func artistObject(artist Artist) map[string]interface{} {
	return map[string]interface{}{
		"__typename": "Artist",
		"id":         artist.ID,
		"internalID": artist.ID,
		"name":       artist.Name,
	}
}

func artworkObject(artwork Artwork) map[string]interface{} {
	return map[string]interface{}{
		"__typename": "Artwork",
		"id":         artwork.ID,
		"internalID": artwork.ID,
		"title":      artwork.Title,
		"published":  artwork.Published,
		"artistID":   artwork.ArtistID,
	}
}

func saleArtworkObject(saleArtwork SaleArtwork) map[string]interface{} {
	object := map[string]interface{}{
		"__typename": "SaleArtwork",
		"id":         saleArtwork.ID,
		"internalID": saleArtwork.ID,
		"lotLabel":   saleArtwork.LotLabel,
		"artworkID":  saleArtwork.ArtworkID,
	}
	if saleArtwork.CurrentBid != "" {
		object["currentBid"] = saleArtwork.CurrentBid
	}
	return object
}
