package config

// Option 配置选项函数
type Option func(*Config)

// WithConfigFile 指定配置文件完整路径
func WithConfigFile(path string) Option {
	return func(c *Config) {
		c.configFile = path
	}
}

// WithConfigName 设置配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(c *Config) {
		c.configName = name
	}
}

// WithConfigType 设置配置文件类型（yaml, json, toml）
func WithConfigType(typ string) Option {
	return func(c *Config) {
		c.configType = typ
	}
}

// WithConfigPaths 设置配置文件搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) {
		c.configPaths = paths
	}
}

// WithOptional 配置文件缺失时仅使用默认值与环境变量
func WithOptional(optional bool) Option {
	return func(c *Config) {
		c.optional = optional
	}
}

// WithDefaults 设置默认配置值
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		c.defaults = defaults
	}
}

// WithEnvPrefix 设置环境变量前缀
// 键名中的 "." 映射为 "_"，如 WSRELAY_LOG_LEVEL 对应 log.level
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// WithProtected 启用保护模式
// 配置文件被外部修改后恢复为加载时的内容，不触发变更回调
func WithProtected(protected bool) Option {
	return func(c *Config) {
		c.protected = protected
	}
}

// WithOnChange 添加配置变更回调
func WithOnChange(fn func(*Config)) Option {
	return func(c *Config) {
		c.handlers = append(c.handlers, fn)
	}
}

// WithOnError 设置错误回调
func WithOnError(fn func(error)) Option {
	return func(c *Config) {
		c.onError = fn
	}
}
