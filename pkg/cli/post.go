package cli

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	frontMatterDelim = []byte("---")

	errNoFrontMatter = errors.New("post must start with a --- delimited YAML front matter")

	postFileFlag = &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Markdown file with YAML front matter (title, slug, summary, forecasts)",
		Required: true,
	}

	slugFlag = &cli.StringFlag{
		Name:     "slug",
		Usage:    "Post slug",
		Required: true,
	}

	postCmd = &cli.Command{
		Name:            "post",
		Usage:           "Manage write-ups about forecasts",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:   "upload",
				Usage:  "Create or replace a post from a markdown file",
				Action: cmdUploadPost,
				Flags:  []cli.Flag{postFileFlag},
			},
			{
				Name:   "list",
				Usage:  "List posts",
				Action: cmdListPosts,
			},
			{
				Name:   "show",
				Usage:  "Show post",
				Action: cmdShowPost,
				Flags:  []cli.Flag{slugFlag},
			},
		},
	}
)

type postFrontMatter struct {
	Title     string  `yaml:"title"`
	Slug      string  `yaml:"slug"`
	Summary   string  `yaml:"summary"`
	Date      string  `yaml:"date"`
	Forecasts []int64 `yaml:"forecasts"`
}

// parsePost splits a markdown document into its front matter and body.
func parsePost(b []byte) (*data.Post, error) {
	b = bytes.TrimLeft(b, "\ufeff \t\r\n")
	if !bytes.HasPrefix(b, frontMatterDelim) {
		return nil, errNoFrontMatter
	}

	rest := b[len(frontMatterDelim):]
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return nil, errNoFrontMatter
	}

	var fm postFrontMatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, fmt.Errorf("parsing front matter: %w", err)
	}

	body := rest[end+1+len(frontMatterDelim):]

	p := &data.Post{
		Slug:        fm.Slug,
		Title:       fm.Title,
		Summary:     fm.Summary,
		Body:        string(bytes.TrimSpace(body)),
		ForecastIDs: fm.Forecasts,
	}

	if fm.Date != "" {
		d, err := parseDate(fm.Date)
		if err != nil {
			return nil, err
		}
		p.CreatedAt = d
	}

	return p, nil
}

func cmdUploadPost(c *cli.Context) error {
	path := c.String(postFileFlag.Name)
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading post file %s: %w", path, err)
	}

	p, err := parsePost(b)
	if err != nil {
		return fmt.Errorf("parsing post file %s: %w", path, err)
	}

	s, err := getStore(c)
	if err != nil {
		return err
	}

	id, err := s.SavePost(c.Context, p)
	if err != nil {
		return fmt.Errorf("saving post: %w", err)
	}
	slog.Info("post saved", "id", id, "slug", p.Slug, "forecasts", len(p.ForecastIDs))

	return encode(c, &idResult{ID: id})
}

func cmdListPosts(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	list, err := s.ListPosts(c.Context)
	if err != nil {
		return fmt.Errorf("listing posts: %w", err)
	}

	return encode(c, list)
}

func cmdShowPost(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return err
	}

	p, err := s.GetPost(c.Context, c.String(slugFlag.Name))
	if err != nil {
		return fmt.Errorf("getting post: %w", err)
	}

	return encode(c, p)
}
