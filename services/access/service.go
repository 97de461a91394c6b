package access

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/services"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ModelEntry is one row of the model registry
type ModelEntry struct {
	Name    string `yaml:"name" json:"name"`
	MinTier string `yaml:"min_tier" json:"min_tier"`
}

// registryFile is the YAML shape of a registry file
type registryFile struct {
	Models []ModelEntry `yaml:"models"`
}

// Service is the tier gate: it owns the registry of generation models and
// decides whether an identity's tier admits a requested model. Unknown
// models are a distinct not-found outcome, never a tier failure.
type Service struct {
	upgradeURL string
	logger     *zap.Logger

	mu     sync.RWMutex
	models map[string]models.Tier
}

// defaultModels ship with the gateway so it is usable without a registry file
var defaultModels = map[string]models.Tier{
	"pollen-mini":    models.TierAnonymous,
	"pollen-swift":   models.TierSeed,
	"pollen-bloom":   models.TierFlower,
	"pollen-grand":   models.TierNectar,
	"pollen-sandbox": models.TierAdmin,
}

// NewService creates the tier gate with the built-in registry. upgradeURL
// tells denied callers where to obtain a higher tier.
func NewService(upgradeURL string, logger *zap.Logger) *Service {
	registry := make(map[string]models.Tier, len(defaultModels))
	for name, tier := range defaultModels {
		registry[name] = tier
	}

	return &Service{
		upgradeURL: upgradeURL,
		logger:     logger,
		models:     registry,
	}
}

// LoadFile replaces the registry with the contents of a YAML file. The
// previous registry stays in effect when the file cannot be read or parsed.
func (s *Service) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse model registry: %w", err)
	}
	if len(file.Models) == 0 {
		return fmt.Errorf("model registry %q defines no models", path)
	}

	registry := make(map[string]models.Tier, len(file.Models))
	for _, entry := range file.Models {
		tier, ok := models.ParseTier(entry.MinTier)
		if !ok {
			return fmt.Errorf("model %q has unknown tier %q", entry.Name, entry.MinTier)
		}
		registry[entry.Name] = tier
	}

	s.mu.Lock()
	s.models = registry
	s.mu.Unlock()

	s.logger.Info("model registry loaded",
		zap.String("path", path),
		zap.Int("models", len(registry)))
	return nil
}

// Authorize decides whether tier admits the named model.
// Returns nil on success, services.ErrModelNotFound for an unregistered
// model, and a forbidden DomainError carrying the current tier, the
// required tier, and the upgrade pointer on denial.
func (s *Service) Authorize(tier models.Tier, model string) error {
	s.mu.RLock()
	required, ok := s.models[model]
	s.mu.RUnlock()

	if !ok {
		return services.ErrModelNotFound
	}

	if !tier.AtLeast(required) {
		return services.NewDomainError(
			services.ErrorTypeForbidden,
			fmt.Sprintf("tier %q does not permit model %q", tier, model),
			nil,
		).
			WithDetail("current_tier", tier.String()).
			WithDetail("required_tier", required.String()).
			WithDetail("upgrade_url", s.upgradeURL)
	}

	return nil
}

// Models lists the registry sorted by name, for the status endpoint
func (s *Service) Models() []ModelEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]ModelEntry, 0, len(s.models))
	for name, tier := range s.models {
		entries = append(entries, ModelEntry{Name: name, MinTier: tier.String()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
