package module

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Spec 模块目录条目（对外导出）
type Spec struct {
	Name         string   `yaml:"name"`                   // 模块名称（唯一）
	Version      string   `yaml:"version"`                // 版本号
	Description  string   `yaml:"description,omitempty"`  // 描述
	SourceURL    string   `yaml:"source_url"`             // 安装包地址（http(s)或本地路径）
	Checksum     string   `yaml:"checksum,omitempty"`     // SHA-256校验和（十六进制）
	Dependencies []string `yaml:"dependencies,omitempty"` // 依赖的模块名称
}

// catalogFile 目录文件结构（内部实现）
type catalogFile struct {
	Modules []*Spec `yaml:"modules"`
}

// Catalog 模块目录（对外导出）
// 从YAML文件加载，加载后只读
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]*Spec
}

// LoadCatalog 从YAML文件加载模块目录（对外导出）
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模块目录失败: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析模块目录失败: %w", err)
	}

	modules := make(map[string]*Spec, len(file.Modules))
	for _, spec := range file.Modules {
		if spec.Name == "" {
			return nil, fmt.Errorf("模块目录包含未命名条目")
		}
		if _, exists := modules[spec.Name]; exists {
			return nil, fmt.Errorf("模块目录包含重复条目: %s", spec.Name)
		}
		modules[spec.Name] = spec
	}
	return &Catalog{modules: modules}, nil
}

// NewCatalog 从条目列表创建模块目录（对外导出）
func NewCatalog(specs ...*Spec) *Catalog {
	modules := make(map[string]*Spec, len(specs))
	for _, spec := range specs {
		modules[spec.Name] = spec
	}
	return &Catalog{modules: modules}
}

// HasModule 检查模块是否在目录中（实现bulk.ModuleCatalog接口）
func (c *Catalog) HasModule(moduleName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.modules[moduleName]
	return ok
}

// Get 查询模块条目（对外导出）
func (c *Catalog) Get(moduleName string) (*Spec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.modules[moduleName]
	return spec, ok
}

// List 列出所有模块条目，按名称排序（对外导出）
func (c *Catalog) List() []*Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]*Spec, 0, len(c.modules))
	for _, spec := range c.modules {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
