// Package refdef models the YAML manifests that publish
// reference genome bundles.
package refdef

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	APIVersionV1        = "v1"
	KindReferenceGenome = "ReferenceGenome"
)

// Assemblies supported as bundle names.
var Assemblies = []string{"hg19", "hg38", "T2T"}

// Definition models the root reference-bundle document.
type Definition struct {
	Schema     string   `yaml:"$schema,omitempty" json:"$schema,omitempty"`
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

// Metadata names the bundle.
type Metadata struct {
	Name    string            `yaml:"name" json:"name"`
	Version string            `yaml:"version" json:"version"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Spec lists the bundle files.
type Spec struct {
	Annotations   FileRef `yaml:"annotations" json:"annotations"`
	ChromSizes    FileRef `yaml:"chromSizes" json:"chromSizes"`
	ChromSizesBED FileRef `yaml:"chromSizesBed,omitempty" json:"chromSizesBed,omitempty"`
	Chains        []Chain `yaml:"chains,omitempty" json:"chains,omitempty"`
}

// FileRef points at a bundle file, optionally pinning its
// digest.
type FileRef struct {
	Path     string `yaml:"path" json:"path"`
	Checksum string `yaml:"checksum,omitempty" json:"checksum,omitempty"`
}

// Chain maps this assembly onto a published target assembly.
type Chain struct {
	Target   string `yaml:"target" json:"target"`
	Path     string `yaml:"path" json:"path"`
	Checksum string `yaml:"checksum,omitempty" json:"checksum,omitempty"`
}

// Parse parses YAML bytes into a Definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate performs semantic validation on the definition.
func (d *Definition) Validate() error {
	if d.APIVersion != APIVersionV1 {
		return fmt.Errorf("unsupported apiVersion: %s", d.APIVersion)
	}
	if d.Kind != KindReferenceGenome {
		return fmt.Errorf("unsupported kind: %s", d.Kind)
	}
	if !validAssembly(d.Metadata.Name) {
		return fmt.Errorf("metadata.name must be one of [%s]", strings.Join(Assemblies, ","))
	}
	if strings.TrimSpace(d.Metadata.Version) == "" {
		return fmt.Errorf("metadata.version is required")
	}

	if strings.TrimSpace(d.Spec.Annotations.Path) == "" {
		return fmt.Errorf("spec.annotations.path is required")
	}
	if strings.TrimSpace(d.Spec.ChromSizes.Path) == "" {
		return fmt.Errorf("spec.chromSizes.path is required")
	}

	targets := make(map[string]int, len(d.Spec.Chains))
	for i, chain := range d.Spec.Chains {
		if !validAssembly(chain.Target) {
			return fmt.Errorf("chains[%d].target must be one of [%s]", i, strings.Join(Assemblies, ","))
		}
		if chain.Target == d.Metadata.Name {
			return fmt.Errorf("chains[%d] targets its own assembly", i)
		}
		if strings.TrimSpace(chain.Path) == "" {
			return fmt.Errorf("chains[%d].path is required", i)
		}
		if _, exists := targets[chain.Target]; exists {
			return fmt.Errorf("duplicate chain target %q", chain.Target)
		}
		targets[chain.Target] = i
	}
	return nil
}

func validAssembly(name string) bool {
	for _, a := range Assemblies {
		if name == a {
			return true
		}
	}
	return false
}
