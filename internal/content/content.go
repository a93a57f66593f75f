// Package content loads crawl definitions from YAML files: an index of
// crawls plus one stops file per crawl asset folder.
package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/citycrawl/crawl/internal/crawl"
)

const (
	IndexFile = "crawls.yaml"
	StopsFile = "stops.yaml"
)

// CrawlDoc is the authoring shape of a crawl, shared by YAML files and the
// admin API.
type CrawlDoc struct {
	ID          string    `yaml:"id" json:"id" validate:"required,max=64"`
	Name        string    `yaml:"name" json:"name" validate:"required"`
	Description string    `yaml:"description" json:"description"`
	AssetFolder string    `yaml:"asset_folder" json:"assetFolder"`
	Duration    string    `yaml:"duration" json:"duration"`
	Distance    string    `yaml:"distance" json:"distance"`
	Difficulty  string    `yaml:"difficulty" json:"difficulty"`
	Visibility  string    `yaml:"visibility" json:"visibility" validate:"required,oneof=public library"`
	StartTime   string    `yaml:"start_time" json:"startTime" validate:"required_if=Visibility public"`
	Stops       []StopDoc `yaml:"stops,omitempty" json:"stops" validate:"dive"`
}

type StopDoc struct {
	StopNumber int               `yaml:"stop_number" json:"stopNumber" validate:"required,min=1"`
	Name       string            `yaml:"name" json:"name"`
	StopType   string            `yaml:"stop_type" json:"stopType"`
	Components map[string]string `yaml:"stop_components" json:"stopComponents"`
	RewardURL  string            `yaml:"reward_url" json:"rewardUrl" validate:"omitempty,url"`
}

type indexDoc struct {
	Crawls []CrawlDoc `yaml:"crawls"`
}

type stopsDoc struct {
	Stops []StopDoc `yaml:"stops"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build validates an authored crawl and converts it into a definition.
func Build(doc CrawlDoc) (crawl.Definition, error) {
	doc.ID = strings.TrimSpace(doc.ID)
	doc.Name = strings.TrimSpace(doc.Name)
	if err := validate.Struct(doc); err != nil {
		return crawl.Definition{}, fmt.Errorf("crawl %q: %w", doc.ID, err)
	}
	if len(doc.Stops) == 0 {
		return crawl.Definition{}, fmt.Errorf("crawl %q: %w", doc.ID, crawl.ErrNoStops)
	}

	def := crawl.Definition{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: strings.TrimSpace(doc.Description),
		AssetFolder: doc.AssetFolder,
		Duration:    doc.Duration,
		Distance:    doc.Distance,
		Difficulty:  doc.Difficulty,
		Visibility:  crawl.Visibility(doc.Visibility),
	}
	if doc.StartTime != "" {
		ts, err := time.Parse(time.RFC3339, doc.StartTime)
		if err != nil {
			return crawl.Definition{}, fmt.Errorf("crawl %q: start_time: %w", doc.ID, err)
		}
		def.StartTime = &ts
	}

	for _, sd := range doc.Stops {
		stop, err := crawl.NewStop(sd.StopNumber, strings.TrimSpace(sd.Name), sd.StopType, sd.Components, sd.RewardURL)
		if err != nil {
			return crawl.Definition{}, fmt.Errorf("crawl %q: %w", doc.ID, err)
		}
		def.Stops = append(def.Stops, stop)
	}
	if err := crawl.CheckNumbering(def.Stops); err != nil {
		return crawl.Definition{}, fmt.Errorf("crawl %q: %w", doc.ID, err)
	}
	return def, nil
}

// Doc converts a definition back into its authoring shape.
func Doc(def crawl.Definition) CrawlDoc {
	doc := CrawlDoc{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		AssetFolder: def.AssetFolder,
		Duration:    def.Duration,
		Distance:    def.Distance,
		Difficulty:  def.Difficulty,
		Visibility:  string(def.Visibility),
	}
	if def.StartTime != nil {
		doc.StartTime = def.StartTime.UTC().Format(time.RFC3339)
	}
	for _, s := range def.Stops {
		doc.Stops = append(doc.Stops, StopDoc{
			StopNumber: s.Number,
			Name:       s.Name,
			StopType:   string(s.Type),
			Components: s.Components(),
			RewardURL:  s.RewardURL,
		})
	}
	return doc
}

// LoadStops resolves a crawl's asset folder to its stop list.
func LoadStops(fsys fs.FS, assetFolder string) ([]StopDoc, error) {
	data, err := fs.ReadFile(fsys, path.Join(assetFolder, StopsFile))
	if err != nil {
		return nil, fmt.Errorf("reading stops for %q: %w", assetFolder, err)
	}
	var doc stopsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing stops for %q: %w", assetFolder, err)
	}
	return doc.Stops, nil
}

// LoadAll reads every crawl from fsys. Crawls that fail to load are reported
// in the returned error slice and skipped.
func LoadAll(fsys fs.FS) ([]crawl.Definition, []error) {
	data, err := fs.ReadFile(fsys, IndexFile)
	if err != nil {
		return nil, []error{fmt.Errorf("reading %s: %w", IndexFile, err)}
	}
	var idx indexDoc
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, []error{fmt.Errorf("parsing %s: %w", IndexFile, err)}
	}

	var (
		defs []crawl.Definition
		errs []error
		seen = map[string]bool{}
	)
	for _, doc := range idx.Crawls {
		if len(doc.Stops) == 0 && doc.AssetFolder != "" {
			stops, err := LoadStops(fsys, doc.AssetFolder)
			if err != nil {
				errs = append(errs, fmt.Errorf("crawl %q: %w", doc.ID, err))
				continue
			}
			doc.Stops = stops
		}
		def, err := Build(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[def.ID] {
			errs = append(errs, fmt.Errorf("crawl %q: duplicate id", def.ID))
			continue
		}
		seen[def.ID] = true
		defs = append(defs, def)
	}
	return defs, errs
}

// Catalog serves definitions loaded from YAML content. It is immutable once
// built and safe for concurrent reads.
type Catalog struct {
	crawls map[string]crawl.Definition
	order  []string
}

// NewCatalog loads content from fsys, logging and skipping broken crawls.
func NewCatalog(fsys fs.FS, logger *slog.Logger) *Catalog {
	defs, errs := LoadAll(fsys)
	for _, err := range errs {
		logger.Warn("skipping crawl content", "error", err)
	}
	return FromDefinitions(defs)
}

func FromDefinitions(defs []crawl.Definition) *Catalog {
	c := &Catalog{crawls: make(map[string]crawl.Definition, len(defs))}
	for _, d := range defs {
		c.crawls[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	sort.Strings(c.order)
	return c
}

func (c *Catalog) Crawls(_ context.Context) ([]crawl.Definition, error) {
	out := make([]crawl.Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.crawls[id])
	}
	return out, nil
}

func (c *Catalog) Crawl(_ context.Context, id string) (crawl.Definition, error) {
	d, ok := c.crawls[id]
	if !ok {
		return crawl.Definition{}, crawl.ErrNotFound
	}
	return d, nil
}

// IsNotExist reports whether err stems from missing content files.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
