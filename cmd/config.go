package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/cinesage/core/trainer"
)

// Config is the optional cinesage.yaml file. Every field falls back to
// a derived default, so an empty or absent file is valid.
type Config struct {
	Data struct {
		DB      string `yaml:"db"`
		Movies  string `yaml:"movies"`
		Ratings string `yaml:"ratings"`
	} `yaml:"data"`

	Checkpoint string `yaml:"checkpoint"`

	Model struct {
		HiddenDim int `yaml:"hidden_dim"`
		OutDim    int `yaml:"out_dim"`
	} `yaml:"model"`

	Train struct {
		Fanout        []int   `yaml:"fanout"`
		BatchSize     int     `yaml:"batch_size"`
		Epochs        int     `yaml:"epochs"`
		LearningRate  float32 `yaml:"learning_rate"`
		TrainFraction float64 `yaml:"train_fraction"`
		Seed          int64   `yaml:"seed"`
	} `yaml:"train"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) hyperparameters() trainer.Hyperparameters {
	return trainer.Hyperparameters{
		HiddenDim:     c.Model.HiddenDim,
		OutDim:        c.Model.OutDim,
		Fanout:        c.Train.Fanout,
		BatchSize:     c.Train.BatchSize,
		Epochs:        c.Train.Epochs,
		LearningRate:  c.Train.LearningRate,
		TrainFraction: c.Train.TrainFraction,
		Seed:          c.Train.Seed,
	}
}
