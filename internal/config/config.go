package config

import (
	"fmt"
	"os"

	"mintgate/internal/logging"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 主配置
type Config struct {
	Provider  *ProviderConfig    `mapstructure:"provider"`
	Networks  *NetworksConfig    `mapstructure:"networks"`
	Sale      *SaleConfig        `mapstructure:"sale"`
	Allowlist *AllowlistConfig   `mapstructure:"allowlist"`
	Events    *EventsConfig      `mapstructure:"events"`
	Journal   *JournalConfig     `mapstructure:"journal"`
	Logging   *logging.LogConfig `mapstructure:"logging"`
}

// ProviderConfig 钱包提供者配置
type ProviderConfig struct {
	URL          string   `mapstructure:"url"`           // 提供者RPC地址
	FallbackURLs []string `mapstructure:"fallback_urls"` // 备用提供者地址，按优先级排列
	Timeout      string   `mapstructure:"timeout"`       // 单次调用超时
	PollInterval string   `mapstructure:"poll_interval"` // 账户/链变更轮询间隔
}

// NetworksConfig 支持的网络集合
// 封闭集合：主网和测试网。链ID不在其中视为不支持的网络，而不是第三种情况。
type NetworksConfig struct {
	Mainnet *NetworkConfig `mapstructure:"mainnet"`
	Testnet *NetworkConfig `mapstructure:"testnet"`
}

// NetworkConfig 单个网络配置
type NetworkConfig struct {
	ChainID         uint64 `mapstructure:"chain_id"`
	Name            string `mapstructure:"name"`
	Currency        string `mapstructure:"currency"`
	ContractAddress string `mapstructure:"contract_address"`
	ExplorerURL     string `mapstructure:"explorer_url"`    // 区块浏览器地址模板
	MarketplaceURL  string `mapstructure:"marketplace_url"` // 交易市场地址模板
}

// SaleConfig 销售阶段配置（展示用静态值，链上cost()为准）
type SaleConfig struct {
	DisplayCost  string `mapstructure:"display_cost"`    // 展示价格，如 "0.01 ETH"
	MaxMintPerTx uint64 `mapstructure:"max_mint_per_tx"` // 单笔铸造上限
}

// AllowlistConfig 白名单来源配置
type AllowlistConfig struct {
	Source string `mapstructure:"source"` // file 或 database
	Path   string `mapstructure:"path"`   // 白名单文件路径
}

// EventsConfig 生命周期事件输出配置
type EventsConfig struct {
	Format    string       `mapstructure:"format"` // file 或 kafka
	Directory string       `mapstructure:"directory"`
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// JournalConfig 铸造流水配置
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// NetworkForChainID 按链ID查找网络配置
// 链ID不在支持集合内时返回错误。
func (c *Config) NetworkForChainID(chainID uint64) (*NetworkConfig, error) {
	if c.Networks != nil {
		if c.Networks.Mainnet != nil && c.Networks.Mainnet.ChainID == chainID {
			return c.Networks.Mainnet, nil
		}
		if c.Networks.Testnet != nil && c.Networks.Testnet.ChainID == chainID {
			return c.Networks.Testnet, nil
		}
	}
	return nil, fmt.Errorf("不支持的链ID: %d", chainID)
}

// Validate 校验配置完整性
func (c *Config) Validate() error {
	if c.Provider == nil || c.Provider.URL == "" {
		return fmt.Errorf("缺少提供者RPC地址")
	}
	if c.Networks == nil || (c.Networks.Mainnet == nil && c.Networks.Testnet == nil) {
		return fmt.Errorf("至少需要配置一个支持的网络")
	}

	for _, network := range []*NetworkConfig{c.Networks.Mainnet, c.Networks.Testnet} {
		if network == nil {
			continue
		}
		if network.ChainID == 0 {
			return fmt.Errorf("网络 %s 缺少链ID", network.Name)
		}
		if !common.IsHexAddress(network.ContractAddress) {
			return fmt.Errorf("网络 %s 的合约地址无效: %s", network.Name, network.ContractAddress)
		}
	}

	if c.Allowlist == nil || (c.Allowlist.Source == "file" && c.Allowlist.Path == "") {
		return fmt.Errorf("缺少白名单来源配置")
	}

	return nil
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 首先尝试从环境变量获取数据库配置
	dbDSN := os.Getenv("MINTGATE_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 未配置的部分落回默认值
	defaults := GetDefaultConfig()
	if config.Provider == nil {
		config.Provider = defaults.Provider
	}
	if config.Sale == nil {
		config.Sale = defaults.Sale
	}
	if config.Events == nil {
		config.Events = defaults.Events
	}
	if config.Journal == nil {
		config.Journal = defaults.Journal
	}
	if config.Logging == nil {
		config.Logging = defaults.Logging
	}

	return &config, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Provider: &ProviderConfig{
			URL:          "", // 需要在YAML配置或数据库中指定
			Timeout:      "15s",
			PollInterval: "5s",
		},
		Networks: &NetworksConfig{
			Mainnet: &NetworkConfig{
				ChainID:         1,
				Name:            "Ethereum Mainnet",
				Currency:        "ETH",
				ContractAddress: "",
				ExplorerURL:     "https://etherscan.io/tx/%s",
				MarketplaceURL:  "https://opensea.io/assets/ethereum/%s",
			},
			Testnet: &NetworkConfig{
				ChainID:         11155111,
				Name:            "Sepolia Testnet",
				Currency:        "SepoliaETH",
				ContractAddress: "",
				ExplorerURL:     "https://sepolia.etherscan.io/tx/%s",
				MarketplaceURL:  "https://testnets.opensea.io/assets/sepolia/%s",
			},
		},
		Sale: &SaleConfig{
			DisplayCost:  "0.01 ETH",
			MaxMintPerTx: 5,
		},
		Allowlist: &AllowlistConfig{
			Source: "file",
			Path:   "configs/allowlist.json",
		},
		Events: &EventsConfig{
			Format:    "file",
			Directory: "./outputs",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"session": "mintgate_session_events",
					"mints":   "mintgate_mint_events",
				},
			},
		},
		Journal: &JournalConfig{
			Path: "./data/journal.db",
		},
		Logging: &logging.LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			Rotation:   false,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}
