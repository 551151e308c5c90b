package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	Quality     int      `mapstructure:"quality"`
	Method      int      `mapstructure:"method"`
	ImageExt    []string `mapstructure:"image_extensions"`
	UseExifTool bool     `mapstructure:"use_exiftool"`
	Manifest    bool     `mapstructure:"manifest"`
}

func LoadConfig() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to find user config dir: %w", err)
	}

	viper.SetConfigName("i2webp")
	viper.SetConfigType("toml")
	viper.AddConfigPath(filepath.Join(configDir, "i2webp"))

	// Set defaults:
	viper.SetDefault("quality", 80)
	viper.SetDefault("method", 6)
	viper.SetDefault("image_extensions", []string{
		".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif", ".gif", ".ico", ".webp",
	})
	viper.SetDefault("use_exiftool", false)
	viper.SetDefault("manifest", true)

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; that's OK, just use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
