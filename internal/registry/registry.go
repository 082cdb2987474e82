// Package registry reads the machines file: the labels the orchestrator may
// ask for and the baseline snapshot each one is reverted to.
//
//	machines:
//	  - label: win7
//	    snapshot: clean
//	    description: Windows 7 SP1 x64
package registry

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

type file struct {
	Machines []entry `json:"machines" validate:"unique=Label,dive"`
}

type entry struct {
	Label       string `json:"label" validate:"required"`
	Snapshot    string `json:"snapshot"`
	Description string `json:"description,omitempty"`
}

// Load reads and validates the machines file at path. A machine without a
// snapshot is accepted here and reported by the startup check.
func Load(path string) ([]models.Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading machines file: %w", err)
	}

	machines, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	zap.S().Named("registry").Infow("machines file loaded", "path", path, "machines", len(machines))
	return machines, nil
}

// Parse decodes a machines document.
func Parse(data []byte) ([]models.Machine, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, srvErrors.NewConfigurationError("parsing machines file: %v", err)
	}

	if err := validator.New().Struct(f); err != nil {
		return nil, srvErrors.NewConfigurationError("invalid machines file: %v", err)
	}

	machines := make([]models.Machine, 0, len(f.Machines))
	for _, e := range f.Machines {
		machines = append(machines, models.Machine{
			Label:       e.Label,
			Snapshot:    e.Snapshot,
			Description: e.Description,
		})
	}
	return machines, nil
}
