package module

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/core/operation"
)

// Manager 模块文件管理器（对外导出）
// 提供生命周期步骤的文件系统实现：
// 下载到暂存目录、校验、安装到模块目录、写入配置、启用标记
type Manager struct {
	catalog    *Catalog
	baseDir    string
	httpClient *http.Client
}

// NewManager 创建模块文件管理器（对外导出）
// baseDir下维护staging/和modules/两个子目录
func NewManager(catalog *Catalog, baseDir string) (*Manager, error) {
	if catalog == nil {
		return nil, fmt.Errorf("Catalog不能为空")
	}
	for _, sub := range []string{"staging", "modules"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("创建模块目录失败: %w", err)
		}
	}
	return &Manager{
		catalog: catalog,
		baseDir: baseDir,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}, nil
}

// Catalog 返回模块目录（对外导出）
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// stagingPath 暂存文件路径（内部方法）
func (m *Manager) stagingPath(moduleName string) string {
	return filepath.Join(m.baseDir, "staging", moduleName+".pkg")
}

// installDir 安装目录路径（内部方法）
func (m *Manager) installDir(moduleName string) string {
	return filepath.Join(m.baseDir, "modules", moduleName)
}

// enabledMarker 启用标记文件路径（内部方法）
func (m *Manager) enabledMarker(moduleName string) string {
	return filepath.Join(m.installDir(moduleName), ".enabled")
}

// Registry 构建生命周期操作注册表（对外导出）
// 每个步骤绑定执行与补偿的文件系统实现
func (m *Manager) Registry() (*operation.Registry, error) {
	return operation.NewRegistryBuilder().
		RegisterFunc(lifecycle.StepDownload, m.download, m.removeStaging).
		RegisterFunc(lifecycle.StepValidate, m.validate, m.noop).
		RegisterFunc(lifecycle.StepInstall, m.install, m.uninstall).
		RegisterFunc(lifecycle.StepConfigure, m.configure, m.removeConfig).
		RegisterFunc(lifecycle.StepEnable, m.enable, m.disable).
		Build()
}

// download 下载安装包到暂存目录（内部方法）
// SourceURL支持http(s)地址和本地文件路径
func (m *Manager) download(ctx context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	spec, ok := m.catalog.Get(moduleName)
	if !ok {
		return fmt.Errorf("模块 %s 不在目录中", moduleName)
	}
	if spec.SourceURL == "" {
		return fmt.Errorf("模块 %s 未配置安装包地址", moduleName)
	}

	// 展开地址中的占位符（${name}、${version}）
	sourceURL, _ := ExpandPlaceholder(spec.SourceURL, templateParams(spec))

	var source io.ReadCloser
	if strings.HasPrefix(sourceURL, "http://") || strings.HasPrefix(sourceURL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
		if err != nil {
			return fmt.Errorf("构建下载请求失败: %w", err)
		}
		resp, err := m.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("下载失败: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("下载失败: HTTP %d", resp.StatusCode)
		}
		source = resp.Body
	} else {
		f, err := os.Open(sourceURL)
		if err != nil {
			return fmt.Errorf("打开本地安装包失败: %w", err)
		}
		source = f
	}
	defer source.Close()

	dest, err := os.Create(m.stagingPath(moduleName))
	if err != nil {
		return fmt.Errorf("创建暂存文件失败: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		os.Remove(m.stagingPath(moduleName))
		return fmt.Errorf("写入暂存文件失败: %w", err)
	}
	return nil
}

// removeStaging Download的补偿：删除暂存文件（内部方法）
func (m *Manager) removeStaging(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	if err := os.Remove(m.stagingPath(moduleName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除暂存文件失败: %w", err)
	}
	return nil
}

// validate 校验暂存文件的SHA-256校验和（内部方法）
// 目录未配置校验和时跳过
func (m *Manager) validate(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	spec, ok := m.catalog.Get(moduleName)
	if !ok {
		return fmt.Errorf("模块 %s 不在目录中", moduleName)
	}
	if spec.Checksum == "" {
		return nil
	}

	f, err := os.Open(m.stagingPath(moduleName))
	if err != nil {
		return fmt.Errorf("打开暂存文件失败: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fmt.Errorf("计算校验和失败: %w", err)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(actual, spec.Checksum) {
		return fmt.Errorf("checksum mismatch: 期望 %s, 实际 %s", spec.Checksum, actual)
	}
	return nil
}

// noop 无需补偿的步骤（内部方法）
func (m *Manager) noop(_ context.Context, _ lifecycle.Step, _ string, _ map[string]interface{}) error {
	return nil
}

// install 将暂存文件安装到模块目录（内部方法）
func (m *Manager) install(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	dir := m.installDir(moduleName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建安装目录失败: %w", err)
	}
	if err := os.Rename(m.stagingPath(moduleName), filepath.Join(dir, "payload.pkg")); err != nil {
		return fmt.Errorf("安装失败: %w", err)
	}
	return nil
}

// uninstall Install的补偿：删除安装目录（内部方法）
func (m *Manager) uninstall(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	if err := os.RemoveAll(m.installDir(moduleName)); err != nil {
		return fmt.Errorf("删除安装目录失败: %w", err)
	}
	return nil
}

// configure 写入模块配置文件（内部方法）
// 工作流元数据中config键的内容合并进模块配置
func (m *Manager) configure(_ context.Context, _ lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
	spec, _ := m.catalog.Get(moduleName)

	config := map[string]interface{}{
		"name": moduleName,
	}
	if spec != nil {
		config["version"] = spec.Version
	}
	if metadata != nil {
		if overrides, ok := metadata["config"].(map[string]interface{}); ok {
			for k, v := range overrides {
				config[k] = v
			}
		}
	}
	if spec != nil {
		// 配置值中的占位符在写入前展开
		if _, err := ExpandPlaceholdersInMap(config, templateParams(spec)); err != nil {
			return fmt.Errorf("展开模块配置失败: %w", err)
		}
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化模块配置失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.installDir(moduleName), "module.yaml"), data, 0644); err != nil {
		return fmt.Errorf("写入模块配置失败: %w", err)
	}
	return nil
}

// removeConfig Configure的补偿：删除配置文件（内部方法）
func (m *Manager) removeConfig(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	path := filepath.Join(m.installDir(moduleName), "module.yaml")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除模块配置失败: %w", err)
	}
	return nil
}

// enable 写入启用标记（内部方法）
func (m *Manager) enable(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	if err := os.WriteFile(m.enabledMarker(moduleName), []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		return fmt.Errorf("写入启用标记失败: %w", err)
	}
	return nil
}

// disable Enable的补偿：删除启用标记（内部方法）
func (m *Manager) disable(_ context.Context, _ lifecycle.Step, moduleName string, _ map[string]interface{}) error {
	if err := os.Remove(m.enabledMarker(moduleName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除启用标记失败: %w", err)
	}
	return nil
}

// IsInstalled 检查模块是否已安装（对外导出）
func (m *Manager) IsInstalled(moduleName string) bool {
	_, err := os.Stat(filepath.Join(m.installDir(moduleName), "payload.pkg"))
	return err == nil
}

// IsEnabled 检查模块是否已启用（对外导出）
func (m *Manager) IsEnabled(moduleName string) bool {
	_, err := os.Stat(m.enabledMarker(moduleName))
	return err == nil
}

// EnableModule 直接启用模块（对外导出，批量操作动作）
func (m *Manager) EnableModule(ctx context.Context, moduleName string) error {
	if !m.IsInstalled(moduleName) {
		return fmt.Errorf("模块 %s 未安装", moduleName)
	}
	return m.enable(ctx, lifecycle.StepEnable, moduleName, nil)
}

// DisableModule 直接禁用模块（对外导出，批量操作动作）
func (m *Manager) DisableModule(ctx context.Context, moduleName string) error {
	return m.disable(ctx, lifecycle.StepEnable, moduleName, nil)
}

// ValidateModule 校验已安装模块完整性（对外导出，批量操作动作）
func (m *Manager) ValidateModule(_ context.Context, moduleName string) error {
	spec, ok := m.catalog.Get(moduleName)
	if !ok {
		return fmt.Errorf("模块 %s 不在目录中", moduleName)
	}
	payload := filepath.Join(m.installDir(moduleName), "payload.pkg")
	f, err := os.Open(payload)
	if err != nil {
		return fmt.Errorf("模块 %s 未安装或安装包缺失: %w", moduleName, err)
	}
	defer f.Close()

	if spec.Checksum == "" {
		return nil
	}
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fmt.Errorf("计算校验和失败: %w", err)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(actual, spec.Checksum) {
		return fmt.Errorf("checksum mismatch: 模块 %s 安装包已损坏", moduleName)
	}
	return nil
}

// BackupModule 备份已安装模块（对外导出，批量操作动作）
func (m *Manager) BackupModule(_ context.Context, moduleName string) error {
	src := filepath.Join(m.installDir(moduleName), "payload.pkg")
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("模块 %s 未安装: %w", moduleName, err)
	}
	defer in.Close()

	backupDir := filepath.Join(m.baseDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("创建备份目录失败: %w", err)
	}
	out, err := os.Create(filepath.Join(backupDir, moduleName+".bak"))
	if err != nil {
		return fmt.Errorf("创建备份文件失败: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("写入备份失败: %w", err)
	}
	return nil
}

// DeleteModule 删除已安装模块（对外导出，批量操作动作）
func (m *Manager) DeleteModule(ctx context.Context, moduleName string) error {
	return m.uninstall(ctx, lifecycle.StepInstall, moduleName, nil)
}
