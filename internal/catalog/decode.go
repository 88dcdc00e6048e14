package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/nimendoza/B2023-R3X-07/internal/dto"
)

// DecodeCatalog reads a YAML (or JSON) catalog. Unknown keys are rejected.
func DecodeCatalog(r io.Reader) (*dto.Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cat dto.Catalog
	if err := dec.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog is empty")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &cat, nil
}

// DecodeRoster reads the students CSV.
func DecodeRoster(r io.Reader) ([]dto.RosterRow, error) {
	var rows []dto.RosterRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return rows, nil
}

// DecodeRankings reads the rankings CSV.
func DecodeRankings(r io.Reader) ([]dto.RankingRow, error) {
	var rows []dto.RankingRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decode rankings: %w", err)
	}
	return rows, nil
}

// Files names the inputs of a run on disk. Roster and Rankings are optional
// when the catalog carries its students inline.
type Files struct {
	Catalog  string
	Roster   string
	Rankings string
}

// Read decodes every file that is set.
func (f Files) Read() (*dto.Catalog, []dto.RosterRow, []dto.RankingRow, error) {
	var (
		cat      *dto.Catalog
		roster   []dto.RosterRow
		rankings []dto.RankingRow
	)
	if err := withFile(f.Catalog, func(r io.Reader) (err error) {
		cat, err = DecodeCatalog(r)
		return err
	}); err != nil {
		return nil, nil, nil, err
	}
	if f.Roster != "" {
		if err := withFile(f.Roster, func(r io.Reader) (err error) {
			roster, err = DecodeRoster(r)
			return err
		}); err != nil {
			return nil, nil, nil, err
		}
	}
	if f.Rankings != "" {
		if err := withFile(f.Rankings, func(r io.Reader) (err error) {
			rankings, err = DecodeRankings(r)
			return err
		}); err != nil {
			return nil, nil, nil, err
		}
	}
	return cat, roster, rankings, nil
}

func withFile(path string, fn func(io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck
	if err := fn(file); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
