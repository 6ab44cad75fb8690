package analyst

import (
	_ "embed"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

//go:embed roles.yaml
var defaultRoles []byte

// Catalog is the set of roles an analysis can draw its panel from.
type Catalog struct {
	roles []domain.Role
	index map[string]int
}

type catalogFile struct {
	Roles []domain.Role `yaml:"roles"`
}

// DefaultCatalog returns the built-in roles.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultRoles)
}

// LoadCatalog reads roles from path, or the built-in roles when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("parse roles: no roles defined")
	}
	c := &Catalog{index: make(map[string]int, len(f.Roles))}
	for _, r := range f.Roles {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", r.Name)
		}
		c.index[r.Name] = len(c.roles)
		c.roles = append(c.roles, r)
	}
	return c, nil
}

func (c *Catalog) Get(name string) (domain.Role, bool) {
	i, ok := c.index[name]
	if !ok {
		return domain.Role{}, false
	}
	return c.roles[i], true
}

// Roles returns every role in file order, enabled or not.
func (c *Catalog) Roles() []domain.Role {
	return append([]domain.Role(nil), c.roles...)
}

// Roster freezes the named roles into a panel. With no names, every enabled
// role is used. Naming a role selects it even if it is not enabled by
// default; naming an unknown role is an error.
func (c *Catalog) Roster(names []string) (domain.Roster, error) {
	var picked []domain.Role
	if len(names) == 0 {
		for _, r := range c.roles {
			if r.Enabled {
				picked = append(picked, r)
			}
		}
		return domain.NewRoster(picked)
	}
	for _, name := range names {
		r, ok := c.Get(name)
		if !ok {
			return domain.Roster{}, fmt.Errorf("unknown role %q", name)
		}
		picked = append(picked, r)
	}
	return domain.NewRoster(picked)
}

// PanelConfig selects the roles of a panel and how their calls are paced.
type PanelConfig struct {
	RolesFile string
	Roles     []string
	RateRPS   float64
	RateBurst int
	Options   Options
}

// BuildPanel loads the role catalog, selects the configured roles and builds
// one agent per role, all sharing one rate limiter.
func BuildPanel(cfg PanelConfig, client domain.LLMClient, logger *zap.Logger) ([]domain.Analyst, error) {
	catalog, err := DefaultCatalog()
	if cfg.RolesFile != "" {
		catalog, err = LoadCatalog(cfg.RolesFile)
	}
	if err != nil {
		return nil, fmt.Errorf("load role catalog: %w", err)
	}
	roster, err := catalog.Roster(cfg.Roles)
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)
	if cfg.RateRPS <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	logger.Info("analyst panel configured", zap.Strings("roles", roster.Names()))
	return NewPanel(roster, client, limiter, cfg.Options, logger), nil
}
