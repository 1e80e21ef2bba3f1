package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"sort"
)

const DefaultUseCase = "general_security"

// UseCase bundles the target event labels with the prompt text sent to the vision model.
type UseCase struct {
	Key          string   `yaml:"-"`
	Name         string   `yaml:"name"`
	Events       []string `yaml:"events"`
	SystemPrompt string   `yaml:"system_prompt"`
	Context      string   `yaml:"context"`
}

type UseCases struct {
	byKey map[string]UseCase
}

func (u UseCases) Get(key string) (UseCase, bool) {
	uc, ok := u.byKey[key]
	return uc, ok
}

// List returns use cases sorted by key, default first.
func (u UseCases) List() []UseCase {
	out := make([]UseCase, 0, len(u.byKey))
	for _, uc := range u.byKey {
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key == DefaultUseCase || out[j].Key == DefaultUseCase {
			return out[i].Key == DefaultUseCase
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func builtinUseCases() map[string]UseCase {
	return map[string]UseCase{
		"general_security": {
			Name: "Security Ops",
			Events: []string{
				"fight", "assault", "theft", "intrusion", "trespass", "vandalism",
				"loitering", "weapon", "medical_emergency", "fire_or_smoke", "unsafe_behavior",
			},
			SystemPrompt: "You are analyzing security footage for public spaces. Identify safety, " +
				"security, and suspicious activity that should be reviewed by a human.",
			Context: "General public-space surveillance (campuses, retail, parking lots, " +
				"transit hubs). Focus on safety risks, suspicious behavior, and incidents.",
		},
		"campus_safety": {
			Name:   "Campus Safety",
			Events: []string{"fight", "intruder", "suspicious_package", "vandalism", "loitering"},
			SystemPrompt: "You are analyzing campus security footage. Identify events that " +
				"might require a human safety review.",
			Context: "University campus security camera monitoring common areas like " +
				"entrances, parking lots, and walkways.",
		},
		"traffic": {
			Name:   "Traffic Monitoring",
			Events: []string{"accident", "wrong_way", "pedestrian_danger", "road_rage", "speeding"},
			SystemPrompt: "You are analyzing traffic camera footage. Identify risky or unsafe " +
				"traffic events that require attention.",
			Context: "Traffic intersection camera monitoring vehicles and pedestrians in " +
				"an urban environment.",
		},
	}
}

// LoadUseCases starts from the built-in catalog and merges the yaml file at path, if any.
func LoadUseCases(path string) (UseCases, error) {
	items := builtinUseCases()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return UseCases{}, fmt.Errorf("failed to read use cases file: %w", err)
		}
		var fromFile map[string]UseCase
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return UseCases{}, fmt.Errorf("failed to parse use cases file: %w", err)
		}
		for key, uc := range fromFile {
			items[key] = uc
		}
	}

	for key, uc := range items {
		if len(uc.Events) == 0 {
			return UseCases{}, fmt.Errorf("use case '%s': events must not be empty", key)
		}
		if uc.SystemPrompt == "" {
			return UseCases{}, fmt.Errorf("use case '%s': system_prompt is required", key)
		}
		if uc.Name == "" {
			uc.Name = key
		}
		uc.Key = key
		items[key] = uc
	}
	if _, ok := items[DefaultUseCase]; !ok {
		return UseCases{}, fmt.Errorf("use case '%s' must be defined", DefaultUseCase)
	}

	return UseCases{byKey: items}, nil
}
