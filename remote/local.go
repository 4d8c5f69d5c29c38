package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vibewaybusiness-oss/chatflow/runtime"
)

// LocalSource serves definitions from a directory of YAML files, laid out
// as {dir}/workflow/{key}.yaml, {dir}/processor/{key}.yaml and
// {dir}/node/{key}.yaml. Files are re-read on every call, matching the
// no-store semantics of the remote store.
type LocalSource struct {
	dir string
}

var _ runtime.DefinitionSource = (*LocalSource)(nil)

func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{dir: dir}
}

func (s *LocalSource) Workflow(_ context.Context, key string) (*runtime.FlowDefinition, error) {
	var def runtime.FlowDefinition
	if err := s.load("workflow", key, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *LocalSource) Processor(_ context.Context, key string) (*runtime.ProcessorDefinition, error) {
	var def runtime.ProcessorDefinition
	if err := s.load("processor", key, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *LocalSource) Node(_ context.Context, key string) (*runtime.NodeDefinition, error) {
	var def runtime.NodeDefinition
	if err := s.load("node", key, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *LocalSource) load(kind, key string, target any) error {
	path := filepath.Join(s.dir, kind, key+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s %q: %w", kind, key, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshalling %s %q: %w", kind, key, err)
	}
	return nil
}
