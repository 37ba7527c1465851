package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mhradec/go-julink"
)

// Config is the optional YAML configuration for the host. Every field has a
// default matching the classic rendering; the file only needs the keys that
// differ.
type Config struct {
	Image struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"image"`

	Chunks struct {
		Cols int `yaml:"cols"`
		Rows int `yaml:"rows"`
	} `yaml:"chunks"`

	View struct {
		TopLeft  Point `yaml:"top_left"`
		BotRight Point `yaml:"bot_right"`
	} `yaml:"view"`

	Constant   Point  `yaml:"constant"`
	Iterations int    `yaml:"iterations"`
	Policy     string `yaml:"policy"` // "sequential" or "random"
	Baud       int    `yaml:"baud"`
	Strict     bool   `yaml:"strict_checksum"`
}

// Point is a complex coordinate in the configuration file.
type Point struct {
	Re float64 `yaml:"re"`
	Im float64 `yaml:"im"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Image.Width = julink.DefaultImageWidth
	cfg.Image.Height = julink.DefaultImageHeight
	cfg.Chunks.Cols = julink.DefaultChunkCols
	cfg.Chunks.Rows = julink.DefaultChunkRows
	cfg.View.TopLeft = Point{Re: -1.6, Im: 1.1}
	cfg.View.BotRight = Point{Re: 1.6, Im: -1.1}
	cfg.Constant = Point{Re: -0.4, Im: 0.6}
	cfg.Iterations = julink.DefaultIterations
	cfg.Policy = "sequential"
	cfg.Baud = julink.DefaultBaudRate
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) policy() (julink.SelectionPolicy, error) {
	switch c.Policy {
	case "", "sequential":
		return julink.PolicySequential, nil
	case "random":
		return julink.PolicyRandom, nil
	}
	return julink.PolicySequential, fmt.Errorf("unknown selection policy %q", c.Policy)
}

func (c Config) hostParams(fb julink.Framebuffer) (julink.HostParams, error) {
	policy, err := c.policy()
	if err != nil {
		return julink.HostParams{}, err
	}
	if c.Iterations < 1 || c.Iterations > 255 {
		return julink.HostParams{}, fmt.Errorf("iterations %d outside [1, 255]", c.Iterations)
	}
	return julink.HostParams{
		Baud:        c.Baud,
		Width:       c.Image.Width,
		Height:      c.Image.Height,
		Cols:        c.Chunks.Cols,
		Rows:        c.Chunks.Rows,
		TopLeft:     complex(c.View.TopLeft.Re, c.View.TopLeft.Im),
		BotRight:    complex(c.View.BotRight.Re, c.View.BotRight.Im),
		Constant:    complex(c.Constant.Re, c.Constant.Im),
		Iterations:  uint8(c.Iterations),
		Policy:      policy,
		Strict:      c.Strict,
		Framebuffer: fb,
	}, nil
}
