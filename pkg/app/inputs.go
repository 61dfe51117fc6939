package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CollectInputs walks the args, recursing into directories. YAML files
// replace the config; image files are returned in the order found.
func CollectInputs(cfg Config, args ...string) (Config, []string, error) {
	var files []string
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return cfg, nil, fmt.Errorf("load %s: %w", arg, err)

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return cfg, nil, fmt.Errorf("readdir %s: %w", arg, err)
			}
			for _, content := range contents {
				var more []string
				cfg, more, err = CollectInputs(cfg, filepath.Join(arg, content.Name()))
				if err != nil {
					return cfg, nil, err
				}
				files = append(files, more...)
			}

		default:
			switch strings.ToLower(filepath.Ext(arg)) {
			case ".yaml", ".yml":
				if cfg, err = LoadConfig(arg); err != nil {
					return cfg, nil, err
				}
			case ".jpg", ".jpeg", ".png", ".tif", ".tiff":
				files = append(files, arg)
			}
		}
	}

	return cfg, files, nil
}
