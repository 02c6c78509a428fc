package config

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	// 加载网络配置
	networks, err := dc.loadNetworks()
	if err != nil {
		return nil, fmt.Errorf("加载网络配置失败: %w", err)
	}
	config.Networks = networks

	// 加载销售与提供者配置
	if err := dc.loadSettings(config); err != nil {
		return nil, fmt.Errorf("加载运行配置失败: %w", err)
	}

	// 白名单改由数据库提供
	config.Allowlist = &AllowlistConfig{Source: "database"}

	return config, nil
}

// loadNetworks 加载网络配置
func (dc *DatabaseConfig) loadNetworks() (*NetworksConfig, error) {
	query := `SELECT chain_id, name, currency, contract_address, explorer_url, marketplace_url, is_mainnet
		FROM mint_networks WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	networks := &NetworksConfig{}
	for rows.Next() {
		var network NetworkConfig
		var isMainnet bool
		err := rows.Scan(&network.ChainID, &network.Name, &network.Currency,
			&network.ContractAddress, &network.ExplorerURL, &network.MarketplaceURL, &isMainnet)
		if err != nil {
			return nil, err
		}

		if isMainnet {
			networks.Mainnet = &network
		} else {
			networks.Testnet = &network
		}
	}

	return networks, rows.Err()
}

// loadSettings 加载键值形式的运行配置
func (dc *DatabaseConfig) loadSettings(config *Config) error {
	query := `SELECT config_key, config_value FROM mint_settings WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}

		switch key {
		case "provider_url":
			config.Provider.URL = value
		case "provider_timeout":
			config.Provider.Timeout = value
		case "poll_interval":
			config.Provider.PollInterval = value
		case "display_cost":
			config.Sale.DisplayCost = value
		case "max_mint_per_tx":
			if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
				config.Sale.MaxMintPerTx = parsed
			} else {
				dc.logger.Warnf("无法解析 max_mint_per_tx: %s", value)
			}
		case "journal_path":
			config.Journal.Path = value
		default:
			dc.logger.Debugf("忽略未知配置项: %s", key)
		}
	}

	return rows.Err()
}

// LoadAllowlist 从数据库加载白名单地址列表
func (dc *DatabaseConfig) LoadAllowlist() ([]string, error) {
	query := `SELECT address FROM allowlist_addresses WHERE is_active = true ORDER BY address`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("查询白名单失败: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}

	dc.logger.Infof("已从数据库加载 %d 个白名单地址", len(addresses))
	return addresses, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	return dc.DB.Close()
}
