package config

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"nftdrops/src/types"

	"github.com/gosimple/slug"
	"github.com/spf13/viper"
)

// Project is one drop collection. Everything a flow needs to price, verify
// and distribute a token of the collection is read from here.
type Project struct {
	Name               string                 `mapstructure:"name"`
	Slug               string                 `mapstructure:"-"`
	BlockchainID       int64                  `mapstructure:"blockchain_id"`
	RPCURL             string                 `mapstructure:"rpc_url"`
	NativeCoinID       string                 `mapstructure:"native_coin_id"`
	NativeSymbol       string                 `mapstructure:"native_symbol"`
	NftContractAddress string                 `mapstructure:"nft_contract_address"`
	MinterAddress      string                 `mapstructure:"minter_address"`
	DistributionType   types.DistributionType `mapstructure:"distribution_type"`
	SigningKeyEnv      string                 `mapstructure:"signing_key_env"`
	SigningKeySecretID string                 `mapstructure:"signing_key_secret_id"`
	PricesEUR          []float64              `mapstructure:"prices_eur"`
	PriceDecimals      int32                  `mapstructure:"price_decimals"`
	ResultURL          string                 `mapstructure:"result_url"`
	AdminEmails        []string               `mapstructure:"admin_emails"`
}

// SigningKeyVar is the environment variable holding the project's signing key.
func (p *Project) SigningKeyVar() string {
	if p.SigningKeyEnv != "" {
		return p.SigningKeyEnv
	}
	return "PRIVATE_KEY_" + strings.ToUpper(strings.ReplaceAll(p.Slug, "-", "_"))
}

type Catalog struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

func NewCatalog(projects ...*Project) *Catalog {
	c := &Catalog{projects: map[string]*Project{}}
	for _, p := range projects {
		c.add(p)
	}
	return c
}

func (c *Catalog) add(p *Project) {
	p.Slug = slug.Make(p.Name)
	if p.NativeSymbol == "" {
		p.NativeSymbol = "ETH"
	}
	c.projects[p.Slug] = p
}

// Get accepts the display name or the slug of a project.
func (c *Catalog) Get(name string) (*Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[slug.Make(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownProject, name)
	}
	return p, nil
}

func (c *Catalog) All() []*Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := make([]*Project, 0, len(c.projects))
	for _, p := range c.projects {
		all = append(all, p)
	}
	return all
}

// LoadCatalog reads the project list from a yaml file.
func LoadCatalog(file string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[config] Error reading project catalog %s: %s\n", file, err.Error())
		return nil, err
	}
	var projects []*Project
	if err := v.UnmarshalKey("projects", &projects); err != nil {
		return nil, err
	}
	c := NewCatalog()
	for _, p := range projects {
		if p.Name == "" {
			return nil, fmt.Errorf("project without a name in %s", file)
		}
		if len(p.PricesEUR) == 0 {
			return nil, fmt.Errorf("project %s has no prices", p.Name)
		}
		if p.DistributionType != "" && !p.DistributionType.Known() {
			return nil, fmt.Errorf("project %s: %w: %s", p.Name, types.ErrUnknownDistributionType, p.DistributionType)
		}
		c.add(p)
	}
	log.Printf("[config] Loaded %d projects from %s\n", len(projects), file)
	return c, nil
}

var catalog *Catalog
var catalogOnce sync.Once

func GetCatalog() *Catalog {
	catalogOnce.Do(func() {
		c, err := LoadCatalog(ProjectsFile())
		if err != nil {
			c = NewCatalog()
		}
		catalog = c
	})
	return catalog
}
