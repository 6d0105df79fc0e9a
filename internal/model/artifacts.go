package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	weightsExt       = ".gguf"
	projectorPrefix  = "mmproj"
	generationConfig = "generation_config.json"
	modelConfig      = "config.json"
)

var (
	errNoWeights   = errors.New("no model weights (*.gguf) found")
	errNoProjector = errors.New("no multimodal projector (mmproj*.gguf) found")
)

// Artifacts are the files a vision-language model is loaded from.
type Artifacts struct {
	Dir       string
	Weights   string
	Projector string
	// EOSTokenID is nil when no config file declares one.
	EOSTokenID *int
}

// ResolveArtifacts inspects a local model directory. Nothing is ever fetched.
func ResolveArtifacts(dir string) (Artifacts, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Artifacts{}, fmt.Errorf("resolve model path: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return Artifacts{}, fmt.Errorf("stat model path: %w", err)
	}
	if !st.IsDir() {
		return Artifacts{}, fmt.Errorf("model path %s is not a directory", abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return Artifacts{}, fmt.Errorf("read model dir: %w", err)
	}
	var weights, projectors []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), weightsExt) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), projectorPrefix) {
			projectors = append(projectors, name)
		} else {
			weights = append(weights, name)
		}
	}
	if len(weights) == 0 {
		return Artifacts{}, fmt.Errorf("%s: %w", abs, errNoWeights)
	}
	if len(projectors) == 0 {
		return Artifacts{}, fmt.Errorf("%s: %w", abs, errNoProjector)
	}
	sort.Strings(weights)
	sort.Strings(projectors)

	a := Artifacts{
		Dir:       abs,
		Weights:   filepath.Join(abs, weights[0]),
		Projector: filepath.Join(abs, projectors[0]),
	}
	eos, err := readEOSTokenID(abs)
	if err != nil {
		return Artifacts{}, err
	}
	a.EOSTokenID = eos
	return a, nil
}

// readEOSTokenID prefers generation_config.json over config.json. A list of ids
// resolves to its first entry.
func readEOSTokenID(dir string) (*int, error) {
	for _, name := range []string{generationConfig, modelConfig} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var cfg struct {
			EOSTokenID json.RawMessage `json:"eos_token_id"`
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if len(cfg.EOSTokenID) == 0 || string(cfg.EOSTokenID) == "null" {
			continue
		}
		var id int
		if err := json.Unmarshal(cfg.EOSTokenID, &id); err == nil {
			return &id, nil
		}
		var ids []int
		if err := json.Unmarshal(cfg.EOSTokenID, &ids); err != nil {
			return nil, fmt.Errorf("parse %s eos_token_id: %w", name, err)
		}
		if len(ids) > 0 {
			return &ids[0], nil
		}
	}
	return nil, nil
}
