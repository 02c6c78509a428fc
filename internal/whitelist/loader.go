package whitelist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mintgate/internal/config"

	"github.com/sirupsen/logrus"
)

// LoadAddresses 按配置加载白名单地址列表
// 支持两种来源：JSON/文本文件，或Postgres数据库（MINTGATE_DB_DSN）。
// 进程生命周期内只加载一次。
func LoadAddresses(cfg *config.AllowlistConfig, logger *logrus.Logger) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("缺少白名单配置")
	}

	switch cfg.Source {
	case "database":
		dsn := os.Getenv("MINTGATE_DB_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("白名单来源为数据库，但未设置 MINTGATE_DB_DSN")
		}

		dbConfig, err := config.NewDatabaseConfig(dsn, logger)
		if err != nil {
			return nil, err
		}
		defer dbConfig.Close()

		return dbConfig.LoadAllowlist()

	case "file", "":
		return loadFromFile(cfg.Path, logger)

	default:
		return nil, fmt.Errorf("未知的白名单来源: %s", cfg.Source)
	}
}

// loadFromFile 从文件加载白名单
// .json 文件按字符串数组解析，其他文件按每行一个地址解析。
func loadFromFile(path string, logger *logrus.Logger) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取白名单文件失败: %w", err)
	}

	var addresses []string
	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &addresses); err != nil {
			return nil, fmt.Errorf("解析白名单JSON失败: %w", err)
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			addresses = append(addresses, line)
		}
	}

	logger.Infof("已从文件加载 %d 个白名单地址: %s", len(addresses), path)
	return addresses, nil
}
