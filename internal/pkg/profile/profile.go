/**
 * 端口配置档与扫描模板
 * @author: sun977
 * @date: 2025.11.10
 * @description: 以 YAML 文件保存命名端口表达式 (profiles/) 与常用扫描模板 (templates/)
 */
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reconledger/internal/core/portspec"
)

const (
	profileDir  = "profiles"
	templateDir = "templates"
	fileExt     = ".yaml"
)

// ErrNotFound 配置档或模板不存在
var ErrNotFound = errors.New("not found")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Profile 命名端口表达式
type Profile struct {
	Name        string    `yaml:"name"`
	Spec        string    `yaml:"spec"`
	Description string    `yaml:"description,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// Ports 展开端口表达式
func (p *Profile) Ports() []int {
	return portspec.Expand(p.Spec)
}

// TemplateOptions 模板中保存的扫描选项，零值表示使用默认
type TemplateOptions struct {
	Concurrency    int           `yaml:"concurrency,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	BannerTimeout  time.Duration `yaml:"banner_timeout,omitempty"`
	Strict         bool          `yaml:"strict,omitempty"`
	ActiveProbe    bool          `yaml:"active_probe,omitempty"`
	Advisory       bool          `yaml:"advisory,omitempty"`
	Adaptive       bool          `yaml:"adaptive,omitempty"`
}

// Template 扫描模板
type Template struct {
	Name      string          `yaml:"name"`
	Target    string          `yaml:"target"`
	Ports     string          `yaml:"ports"`
	Options   TemplateOptions `yaml:"options"`
	UpdatedAt time.Time       `yaml:"updated_at"`
}

// Store 基于目录的存储
type Store struct {
	dir string
}

// NewStore 创建存储，目录在首次保存时创建
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "./profiles"
	}
	return &Store{dir: dir}
}

// Dir 根目录
func (s *Store) Dir() string { return s.dir }

// SaveProfile 保存（覆盖）配置档
func (s *Store) SaveProfile(p *Profile) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if strings.TrimSpace(p.Spec) == "" {
		return fmt.Errorf("profile %q: empty port spec", p.Name)
	}
	p.UpdatedAt = time.Now().UTC()
	return s.write(profileDir, p.Name, p)
}

// LoadProfile 读取配置档
func (s *Store) LoadProfile(name string) (*Profile, error) {
	var p Profile
	if err := s.read(profileDir, name, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles 按名称排序列出配置档
func (s *Store) ListProfiles() ([]string, error) {
	return s.list(profileDir)
}

// DeleteProfile 删除配置档
func (s *Store) DeleteProfile(name string) error {
	return s.remove(profileDir, name)
}

// SaveTemplate 保存（覆盖）扫描模板
func (s *Store) SaveTemplate(t *Template) error {
	if err := validateName(t.Name); err != nil {
		return err
	}
	if strings.TrimSpace(t.Target) == "" {
		return fmt.Errorf("template %q: empty target", t.Name)
	}
	t.UpdatedAt = time.Now().UTC()
	return s.write(templateDir, t.Name, t)
}

// LoadTemplate 读取扫描模板
func (s *Store) LoadTemplate(name string) (*Template, error) {
	var t Template
	if err := s.read(templateDir, name, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplates 按名称排序列出模板
func (s *Store) ListTemplates() ([]string, error) {
	return s.list(templateDir)
}

func (s *Store) path(kind, name string) string {
	return filepath.Join(s.dir, kind, name+fileExt)
}

func (s *Store) write(kind, name string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %q: %w", kind, name, err)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, kind), 0o755); err != nil {
		return err
	}

	// 先写临时文件再改名，避免读到半截内容
	target := s.path(kind, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (s *Store) read(kind, name string, v interface{}) error {
	if err := validateName(name); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path(kind, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s %q: %w", strings.TrimSuffix(kind, "s"), name, ErrNotFound)
		}
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", s.path(kind, name), err)
	}
	return nil
}

func (s *Store) list(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) remove(kind, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(kind, name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", strings.TrimSuffix(kind, "s"), name, ErrNotFound)
	}
	return err
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q: use letters, digits, '_', '-' or '.'", name)
	}
	return nil
}
