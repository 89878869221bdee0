package manager_serv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"
)

// UnitFile is the manifest name looked up in every service directory.
const UnitFile = "unit.json"

// Unit describes one supervised service: its bus name, the command line
// that launches it and the working directory it runs in.
type Unit struct {
	Name string `json:"name"`
	Cmd  string `json:"cmd"`
	Dir  string `json:"dir,omitempty"`
}

// DiscoverUnits scans the immediate subdirectories of root for unit.json
// manifests. The supervisor's own manifest is skipped so it never spawns a
// second copy of itself. Units come back in directory order, which is the
// order start_all uses.
func DiscoverUnits(root string) ([]Unit, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read units dir: %w", err)
	}

	var units []Unit
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		u, err := loadUnit(filepath.Join(dir, UnitFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("unit %s: %w", e.Name(), err)
		}
		if u.Name == ServiceName {
			continue
		}
		if u.Dir == "" {
			u.Dir = dir
		} else if !filepath.IsAbs(u.Dir) {
			u.Dir = filepath.Join(dir, u.Dir)
		}
		units = append(units, u)
	}
	return units, nil
}

func loadUnit(path string) (Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Unit{}, err
	}
	var u Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return Unit{}, fmt.Errorf("parse manifest: %w", err)
	}
	if u.Name == "" {
		return Unit{}, fmt.Errorf("manifest has no name")
	}
	if _, err := shlex.Split(u.Cmd); err != nil || u.Cmd == "" {
		return Unit{}, fmt.Errorf("manifest has no usable cmd")
	}
	return u, nil
}
