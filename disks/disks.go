package disks

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

// ImageProfile is a predefined formatter geometry: how many inode slots and
// data blocks an image gets. Profiles exist so `mkfs -p <slug>` can create
// sensible images without the caller doing capacity math.
type ImageProfile struct {
	Name          string `csv:"name"`
	Slug          string `csv:"slug"`
	NumInodes     uint32 `csv:"num_inodes"`
	NumDataBlocks uint32 `csv:"num_data_blocks"`
	Notes         string `csv:"notes"`
}

//go:embed image-profiles.csv
var imageProfilesRawCSV string

var imageProfiles = make(map[string]ImageProfile)

// GetPredefinedImageProfile looks up a profile by its slug.
func GetPredefinedImageProfile(slug string) (ImageProfile, error) {
	profile, ok := imageProfiles[slug]
	if ok {
		return profile, nil
	}

	err := fmt.Errorf("no predefined image profile exists with slug %q", slug)
	return ImageProfile{}, err
}

// Slugs returns every known profile slug, sorted.
func Slugs() []string {
	slugs := make([]string, 0, len(imageProfiles))
	for slug := range imageProfiles {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func init() {
	reader := strings.NewReader(imageProfilesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row ImageProfile) error {
			_, exists := imageProfiles[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for image profile %q found on row %d",
					row.Slug,
					len(imageProfiles)+1,
				)
			}
			imageProfiles[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
